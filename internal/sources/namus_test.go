package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

func newTestNamUs(t *testing.T) *NamUsAdapter {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req namusSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Skip > 0 {
			json.NewEncoder(w).Encode(namusSearchResponse{Count: 1})
			return
		}

		height := 64.0
		weight := 120.0
		min, max := 14, 14
		json.NewEncoder(w).Encode(namusSearchResponse{
			Count: 1,
			Results: []namusResult{{
				IDFormatted:           "MP98765",
				Namus2Number:          98765,
				FirstName:             strPtr("Lucia"),
				LastName:              strPtr("Moreno"),
				DateOfBirth:           "2009-08-30",
				DateOfLastContact:     "2023-12-24",
				ComputedMissingMinAge: &min,
				ComputedMissingMaxAge: &max,
				CityOfLastContact:     "Tucson",
				StateDisplayName:      "Arizona",
				Gender:                "Female",
				HeightFromInches:      &height,
				WeightFromLbs:         &weight,
				CaseImageURL:          "https://img.example.com/mp98765.jpg",
			}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := config.SourceConfig{BaseURL: srv.URL, PageSize: 50}
	return NewNamUsAdapter(cfg, testRetryConfig(), zap.NewNop())
}

func TestNamUsFetchAndNormalize(t *testing.T) {
	adapter := newTestNamUs(t)

	page, err := adapter.Fetch(context.Background(), FetchOptions{Page: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasMore)
	assert.Equal(t, "MP98765", page.Items[0].ID)

	rec, err := adapter.Normalize(page.Items[0])
	require.NoError(t, err)
	assert.Equal(t, models.SourceNamUs, rec.Source)
	assert.Equal(t, "lucia moreno", rec.NameNormalized)
	assert.Equal(t, models.GenderFemale, rec.Gender)
	require.NotNil(t, rec.Age)
	assert.Equal(t, 14, *rec.Age)
	assert.Nil(t, rec.AgeRange)
	require.NotNil(t, rec.HeightCm)
	assert.Equal(t, 163, *rec.HeightCm) // 64 inches
	require.NotNil(t, rec.WeightKg)
	assert.Equal(t, 54, *rec.WeightKg) // 120 lbs
	require.NotNil(t, rec.DateOfBirth)
	assert.Equal(t, 2009, rec.DateOfBirth.Year())
	require.NotNil(t, rec.LastSeenLocation)
	assert.Equal(t, "Tucson, Arizona", *rec.LastSeenLocation)
	assert.Equal(t, []string{"https://img.example.com/mp98765.jpg"}, rec.PhotoURLs)
}

func TestNamUsAgeRange(t *testing.T) {
	adapter := newTestNamUs(t)
	min, max := 20, 25
	payload, _ := json.Marshal(namusResult{
		IDFormatted:           "MP1",
		FirstName:             strPtr("Unknown"),
		LastName:              strPtr("Doe"),
		ComputedMissingMinAge: &min,
		ComputedMissingMaxAge: &max,
	})

	rec, err := adapter.Normalize(RawItem{ID: "MP1", Payload: payload})
	require.NoError(t, err)
	assert.Nil(t, rec.Age)
	require.NotNil(t, rec.AgeRange)
	assert.Equal(t, 20, rec.AgeRange.Min)
	assert.Equal(t, 25, rec.AgeRange.Max)
}
