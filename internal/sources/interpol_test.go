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

func newTestInterpol(t *testing.T) *InterpolAdapter {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/yellow", r.URL.Path)

		resp := interpolNoticesResponse{Total: 45}
		resp.Query.Page = 1
		resp.Query.ResultPerPage = 40
		if r.URL.Query().Get("page") == "1" {
			resp.Embedded.Notices = []interpolNotice{{
				EntityID:      "2023/51234",
				Forename:      strPtr("Élodie"),
				Name:          strPtr("Fournier"),
				DateOfBirth:   "2006/02/18",
				Sex:           "F",
				Nationalities: []string{"FR"},
				Country:       "FR",
				Links: map[string]interpolLink{
					"self":      {Href: "https://ws-public.interpol.int/notices/v1/yellow/2023-51234"},
					"thumbnail": {Href: "https://ws-public.interpol.int/notices/v1/yellow/2023-51234/images/thumb"},
				},
			}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	cfg := config.SourceConfig{BaseURL: srv.URL, PageSize: 40}
	return NewInterpolAdapter(cfg, testRetryConfig(), zap.NewNop())
}

func TestInterpolFetchAndNormalize(t *testing.T) {
	adapter := newTestInterpol(t)

	page, err := adapter.Fetch(context.Background(), FetchOptions{Page: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.TotalPages) // ceil(45 / 40)
	assert.True(t, page.HasMore)
	// entity ids are kept path-safe
	assert.Equal(t, "2023-51234", page.Items[0].ID)

	rec, err := adapter.Normalize(page.Items[0])
	require.NoError(t, err)
	assert.Equal(t, models.SourceInterpol, rec.Source)
	assert.Equal(t, "elodie fournier", rec.NameNormalized)
	assert.Equal(t, models.GenderFemale, rec.Gender)
	require.NotNil(t, rec.DateOfBirth)
	assert.Equal(t, 2006, rec.DateOfBirth.Year())
	require.NotNil(t, rec.LastSeenCountry)
	assert.Equal(t, "FR", *rec.LastSeenCountry)
	require.Len(t, rec.PhotoURLs, 1)
	require.NotNil(t, rec.SourceURL)
	assert.Equal(t, models.StatusMissing, rec.Status)
}

func TestInterpolLastPage(t *testing.T) {
	adapter := newTestInterpol(t)

	page, err := adapter.Fetch(context.Background(), FetchOptions{Page: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}
