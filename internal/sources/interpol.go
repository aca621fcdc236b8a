package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

// InterpolAdapter pulls yellow notices (missing persons) from the public
// notices API. The feed is HAL-style JSON with notices embedded per page and
// a thumbnail link per notice.
type InterpolAdapter struct {
	cfg    config.SourceConfig
	client *Client
	logger *zap.Logger
}

func NewInterpolAdapter(cfg config.SourceConfig, retry *config.SourcesConfig, logger *zap.Logger) *InterpolAdapter {
	return &InterpolAdapter{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.RateLimit, *retry, logger),
		logger: logger.With(zap.String("source", string(models.SourceInterpol))),
	}
}

func (a *InterpolAdapter) Source() models.Source { return models.SourceInterpol }

type interpolLink struct {
	Href string `json:"href"`
}

type interpolNotice struct {
	EntityID      string                  `json:"entity_id"`
	Forename      *string                 `json:"forename"`
	Name          *string                 `json:"name"` // surname
	DateOfBirth   string                  `json:"date_of_birth"`
	Sex           string                  `json:"sex_id"` // "M" / "F" / "U"
	Nationalities []string                `json:"nationalities"`
	Country       string                  `json:"country"` // country of the requesting bureau
	Links         map[string]interpolLink `json:"_links"`
}

type interpolNoticesResponse struct {
	Total int `json:"total"`
	Query struct {
		Page          int `json:"page"`
		ResultPerPage int `json:"resultPerPage"`
	} `json:"query"`
	Embedded struct {
		Notices []interpolNotice `json:"notices"`
	} `json:"_embedded"`
}

func (a *InterpolAdapter) Fetch(ctx context.Context, opts FetchOptions) (Page, error) {
	size := opts.PageSize
	if size <= 0 {
		size = a.cfg.PageSize
	}

	var resp interpolNoticesResponse
	query := map[string]string{
		"page":          fmt.Sprintf("%d", opts.Page),
		"resultPerPage": fmt.Sprintf("%d", size),
	}
	if err := a.client.GetJSON(ctx, "/yellow", query, &resp); err != nil {
		return Page{}, fmt.Errorf("interpol yellow notices page %d: %w", opts.Page, err)
	}

	totalPages := 0
	if resp.Total > 0 && size > 0 {
		totalPages = (resp.Total + size - 1) / size
	}

	items := make([]RawItem, 0, len(resp.Embedded.Notices))
	for _, notice := range resp.Embedded.Notices {
		payload, err := json.Marshal(notice)
		if err != nil {
			a.logger.Warn("dropping unmarshalable notice", zap.String("entity_id", notice.EntityID), zap.Error(err))
			continue
		}
		items = append(items, RawItem{ID: interpolExternalID(notice), Payload: payload})
	}

	return Page{
		Items:      items,
		TotalPages: totalPages,
		HasMore:    totalPages == 0 || opts.Page < totalPages,
	}, nil
}

func interpolExternalID(n interpolNotice) string {
	if n.EntityID != "" {
		// entity ids look like "2023/12345"; keep them path-safe
		return strings.ReplaceAll(n.EntityID, "/", "-")
	}
	return "interpol-synth-" + uuid.NewString()
}

func (a *InterpolAdapter) Normalize(raw RawItem) (models.CanonicalRecord, error) {
	var n interpolNotice
	if err := json.Unmarshal(raw.Payload, &n); err != nil {
		return models.CanonicalRecord{}, fmt.Errorf("interpol payload: %w", err)
	}

	rec := models.CanonicalRecord{
		ExternalID:     raw.ID,
		Source:         models.SourceInterpol,
		FirstName:      n.Forename,
		LastName:       n.Name,
		NameNormalized: NormalizeName(n.Forename, n.Name),
		DateOfBirth:    ParseDate(n.DateOfBirth),
		Gender:         NormalizeGender(n.Sex),
		Status:         models.StatusMissing, // a published yellow notice is an open case
		RawData:        raw.Payload,
	}

	if n.Country != "" {
		rec.LastSeenCountry = NormalizeCountry(n.Country)
	} else if len(n.Nationalities) > 0 {
		rec.LastSeenCountry = NormalizeCountry(n.Nationalities[0])
	}

	if link, ok := n.Links["thumbnail"]; ok && link.Href != "" {
		rec.PhotoURLs = append(rec.PhotoURLs, link.Href)
	}
	if link, ok := n.Links["images"]; ok && link.Href != "" && len(rec.PhotoURLs) == 0 {
		rec.PhotoURLs = append(rec.PhotoURLs, link.Href)
	}
	if link, ok := n.Links["self"]; ok && link.Href != "" {
		href := link.Href
		rec.SourceURL = &href
	}

	return rec, nil
}

func (a *InterpolAdapter) Status(ctx context.Context) Status {
	return probeStatus(ctx, a)
}
