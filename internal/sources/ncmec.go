package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

// NCMECAdapter pulls the public missing-children search feed. The list
// endpoint returns summaries only; each item links to a detail resource and
// an image-list resource which are fetched per item (best effort, a failed
// enrichment degrades the record to summary-only data).
type NCMECAdapter struct {
	cfg    config.SourceConfig
	client *Client
	logger *zap.Logger
}

func NewNCMECAdapter(cfg config.SourceConfig, retry *config.SourcesConfig, logger *zap.Logger) *NCMECAdapter {
	return &NCMECAdapter{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.RateLimit, *retry, logger),
		logger: logger.With(zap.String("source", string(models.SourceNCMEC))),
	}
}

func (a *NCMECAdapter) Source() models.Source { return models.SourceNCMEC }

type ncmecSummary struct {
	CaseNumber     string  `json:"caseNumber"`
	OrgPrefix      string  `json:"orgPrefix"`
	PersonID       int64   `json:"personId"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	BirthDate      string  `json:"birthDate"`
	MissingDate    string  `json:"missingDate"`
	Age            *int    `json:"age"`
	Sex            string  `json:"sex"`
	Race           *string `json:"race"`
	MissingCity    string  `json:"missingCity"`
	MissingState   string  `json:"missingState"`
	MissingCountry string  `json:"missingCountry"`
	CaseStatus     string  `json:"caseStatus"`
}

type ncmecDetail struct {
	Height      string   `json:"height"`
	Weight      string   `json:"weight"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type ncmecSearchResponse struct {
	Status       string         `json:"status"`
	TotalRecords int            `json:"totalRecords"`
	TotalPages   int            `json:"totalPages"`
	Persons      []ncmecSummary `json:"persons"`
}

type ncmecImagesResponse struct {
	Images []struct {
		FullURL string `json:"fullUrl"`
	} `json:"images"`
}

// ncmecItem is the merged raw payload kept per record: the list summary plus
// whatever enrichment succeeded.
type ncmecItem struct {
	Summary ncmecSummary `json:"summary"`
	Detail  *ncmecDetail `json:"detail,omitempty"`
	Images  []string     `json:"images,omitempty"`
}

func (a *NCMECAdapter) Fetch(ctx context.Context, opts FetchOptions) (Page, error) {
	size := opts.PageSize
	if size <= 0 {
		size = a.cfg.PageSize
	}

	var resp ncmecSearchResponse
	query := map[string]string{
		"page":       fmt.Sprintf("%d", opts.Page),
		"size":       fmt.Sprintf("%d", size),
		"caseType":   "missing",
		"searchLang": "en_US",
	}
	if err := a.client.GetJSON(ctx, "/search", query, &resp); err != nil {
		return Page{}, fmt.Errorf("ncmec search page %d: %w", opts.Page, err)
	}

	items := make([]RawItem, 0, len(resp.Persons))
	for _, summary := range resp.Persons {
		item := ncmecItem{Summary: summary}
		a.enrich(ctx, &item)

		payload, err := json.Marshal(item)
		if err != nil {
			a.logger.Warn("dropping unmarshalable item", zap.String("case_number", summary.CaseNumber), zap.Error(err))
			continue
		}
		items = append(items, RawItem{ID: ncmecExternalID(summary), Payload: payload})
	}

	return Page{
		Items:      items,
		TotalPages: resp.TotalPages,
		HasMore:    resp.TotalPages == 0 || opts.Page < resp.TotalPages,
	}, nil
}

// enrich fetches the detail and image resources for one summary. A missing
// detail is never fatal for the page; the record just stays summary-only.
func (a *NCMECAdapter) enrich(ctx context.Context, item *ncmecItem) {
	caseID := fmt.Sprintf("%s/%s", item.Summary.OrgPrefix, item.Summary.CaseNumber)

	var detail ncmecDetail
	if err := a.client.GetJSON(ctx, "/case/"+caseID, nil, &detail); err != nil {
		a.logger.Debug("detail fetch failed, keeping summary only",
			zap.String("case", caseID), zap.Error(err))
	} else {
		item.Detail = &detail
	}

	var images ncmecImagesResponse
	if err := a.client.GetJSON(ctx, "/case/"+caseID+"/images", nil, &images); err != nil {
		a.logger.Debug("image fetch failed, keeping summary only",
			zap.String("case", caseID), zap.Error(err))
		return
	}
	for _, img := range images.Images {
		if img.FullURL != "" {
			item.Images = append(item.Images, img.FullURL)
		}
	}
}

// ncmecExternalID falls back in order: case number, person id with source
// prefix, synthesized identifier. The synthesized branch keeps distinct
// unidentified records from collapsing into one another.
func ncmecExternalID(s ncmecSummary) string {
	if s.CaseNumber != "" {
		return s.CaseNumber
	}
	if s.PersonID != 0 {
		return fmt.Sprintf("ncmec-%d", s.PersonID)
	}
	return "ncmec-synth-" + uuid.NewString()
}

func (a *NCMECAdapter) Normalize(raw RawItem) (models.CanonicalRecord, error) {
	var item ncmecItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return models.CanonicalRecord{}, fmt.Errorf("ncmec payload: %w", err)
	}
	s := item.Summary

	rec := models.CanonicalRecord{
		ExternalID:     raw.ID,
		Source:         models.SourceNCMEC,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		NameNormalized: NormalizeName(s.FirstName, s.LastName),
		DateOfBirth:    ParseDate(s.BirthDate),
		MissingDate:    ParseDate(s.MissingDate),
		Gender:         NormalizeGender(s.Sex),
		Race:           s.Race,
		Age:            s.Age,
		PhotoURLs:      item.Images,
		Status:         ncmecStatus(s.CaseStatus),
		RawData:        raw.Payload,
	}

	if loc := joinLocation(s.MissingCity, s.MissingState, s.MissingCountry); loc != "" {
		rec.LastSeenLocation = &loc
	}
	rec.LastSeenCountry = NormalizeCountry(s.MissingCountry)

	if item.Detail != nil {
		rec.HeightCm = ParseHeightCm(item.Detail.Height)
		rec.WeightKg = ParseWeightKg(item.Detail.Weight)
		rec.LastSeenLat = item.Detail.Latitude
		rec.LastSeenLng = item.Detail.Longitude
	}

	if url := ncmecPosterURL(s); url != "" {
		rec.SourceURL = &url
	}

	return rec, nil
}

func ncmecStatus(s string) models.CaseStatus {
	switch s {
	case "Missing", "missing":
		return models.StatusMissing
	case "Recovered", "recovered", "Found", "found":
		return models.StatusFound
	default:
		return models.StatusUnknown
	}
}

func ncmecPosterURL(s ncmecSummary) string {
	if s.CaseNumber == "" || s.OrgPrefix == "" {
		return ""
	}
	return fmt.Sprintf("https://www.missingkids.org/poster/%s/%s", s.OrgPrefix, s.CaseNumber)
}

func (a *NCMECAdapter) Status(ctx context.Context) Status {
	return probeStatus(ctx, a)
}

// joinLocation builds "City, State, Country" skipping empty parts.
func joinLocation(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
