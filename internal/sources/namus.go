package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

// NamUsAdapter pulls the national missing-persons database search API.
// Pagination is POST-based (take/skip); records carry structured fields with
// imperial units, converted to metric at normalization.
type NamUsAdapter struct {
	cfg    config.SourceConfig
	client *Client
	logger *zap.Logger
}

func NewNamUsAdapter(cfg config.SourceConfig, retry *config.SourcesConfig, logger *zap.Logger) *NamUsAdapter {
	return &NamUsAdapter{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.RateLimit, *retry, logger),
		logger: logger.With(zap.String("source", string(models.SourceNamUs))),
	}
}

func (a *NamUsAdapter) Source() models.Source { return models.SourceNamUs }

type namusSearchRequest struct {
	Take          int      `json:"take"`
	Skip          int      `json:"skip"`
	Projections   []string `json:"projections"`
	SortDirection string   `json:"sortDirection"`
}

type namusResult struct {
	IDFormatted           string   `json:"idFormatted"`
	Namus2Number          int64    `json:"namus2Number"`
	FirstName             *string  `json:"firstName"`
	LastName              *string  `json:"lastName"`
	DateOfBirth           string   `json:"dateOfBirth"`
	DateOfLastContact     string   `json:"dateOfLastContact"`
	ComputedMissingMinAge *int     `json:"computedMissingMinAge"`
	ComputedMissingMaxAge *int     `json:"computedMissingMaxAge"`
	CityOfLastContact     string   `json:"cityOfLastContact"`
	CountyDisplayName     string   `json:"countyDisplayName"`
	StateDisplayName      string   `json:"stateOfLastContactDisplayName"`
	Gender                string   `json:"gender"`
	RaceEthnicity         *string  `json:"raceEthnicity"`
	HeightFromInches      *float64 `json:"heightFrom"`
	WeightFromLbs         *float64 `json:"weightFrom"`
	CaseImageURL          string   `json:"caseImageUrl"`
}

type namusSearchResponse struct {
	Count   int           `json:"count"`
	Results []namusResult `json:"results"`
}

func (a *NamUsAdapter) Fetch(ctx context.Context, opts FetchOptions) (Page, error) {
	size := opts.PageSize
	if size <= 0 {
		size = a.cfg.PageSize
	}

	body := namusSearchRequest{
		Take:          size,
		Skip:          (opts.Page - 1) * size,
		Projections:   []string{"namus2Number", "firstName", "lastName", "dateOfBirth", "dateOfLastContact", "gender", "raceEthnicity", "heightFrom", "weightFrom", "cityOfLastContact", "stateOfLastContactDisplayName", "caseImageUrl"},
		SortDirection: "descending",
	}

	var resp namusSearchResponse
	if err := a.client.PostJSON(ctx, "/CaseSets/NamUs/MissingPersons/Search", body, &resp); err != nil {
		return Page{}, fmt.Errorf("namus search page %d: %w", opts.Page, err)
	}

	totalPages := 0
	if resp.Count > 0 && size > 0 {
		totalPages = (resp.Count + size - 1) / size
	}

	items := make([]RawItem, 0, len(resp.Results))
	for _, res := range resp.Results {
		payload, err := json.Marshal(res)
		if err != nil {
			a.logger.Warn("dropping unmarshalable item", zap.String("id", res.IDFormatted), zap.Error(err))
			continue
		}
		items = append(items, RawItem{ID: namusExternalID(res), Payload: payload})
	}

	return Page{
		Items:      items,
		TotalPages: totalPages,
		HasMore:    totalPages == 0 || opts.Page < totalPages,
	}, nil
}

func namusExternalID(r namusResult) string {
	if r.IDFormatted != "" {
		return r.IDFormatted
	}
	if r.Namus2Number != 0 {
		return fmt.Sprintf("namus-%d", r.Namus2Number)
	}
	return "namus-synth-" + uuid.NewString()
}

func (a *NamUsAdapter) Normalize(raw RawItem) (models.CanonicalRecord, error) {
	var r namusResult
	if err := json.Unmarshal(raw.Payload, &r); err != nil {
		return models.CanonicalRecord{}, fmt.Errorf("namus payload: %w", err)
	}

	rec := models.CanonicalRecord{
		ExternalID:     raw.ID,
		Source:         models.SourceNamUs,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		NameNormalized: NormalizeName(r.FirstName, r.LastName),
		DateOfBirth:    ParseDate(r.DateOfBirth),
		MissingDate:    ParseDate(r.DateOfLastContact),
		Gender:         NormalizeGender(r.Gender),
		Race:           r.RaceEthnicity,
		Status:         models.StatusMissing, // the search feed only lists open cases
		RawData:        raw.Payload,
	}

	if r.ComputedMissingMinAge != nil && r.ComputedMissingMaxAge != nil {
		if *r.ComputedMissingMinAge == *r.ComputedMissingMaxAge {
			rec.Age = r.ComputedMissingMinAge
		} else {
			rec.AgeRange = &models.AgeRange{Min: *r.ComputedMissingMinAge, Max: *r.ComputedMissingMaxAge}
		}
	} else if r.ComputedMissingMinAge != nil {
		rec.Age = r.ComputedMissingMinAge
	}

	if r.HeightFromInches != nil && *r.HeightFromInches > 0 {
		cm := int(math.Round(*r.HeightFromInches * 2.54))
		rec.HeightCm = &cm
	}
	if r.WeightFromLbs != nil && *r.WeightFromLbs > 0 {
		kg := int(math.Round(*r.WeightFromLbs * 0.45359237))
		rec.WeightKg = &kg
	}

	if loc := joinLocation(r.CityOfLastContact, r.StateDisplayName); loc != "" {
		rec.LastSeenLocation = &loc
		us := "US"
		rec.LastSeenCountry = &us
	}

	if r.CaseImageURL != "" {
		rec.PhotoURLs = []string{r.CaseImageURL}
	}
	if r.IDFormatted != "" {
		url := "https://www.namus.gov/MissingPersons/Case#/" + r.IDFormatted
		rec.SourceURL = &url
	}

	return rec, nil
}

func (a *NamUsAdapter) Status(ctx context.Context) Status {
	return probeStatus(ctx, a)
}
