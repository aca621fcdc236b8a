package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clientPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 0, *testRetryConfig(), zap.NewNop())
}

func TestGetJSONIgnoresServedContentType(t *testing.T) {
	// valid JSON labelled text/plain must still decode into the result
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, `{"name":"ncmec","count":3}`)
	}))

	var got clientPayload
	require.NoError(t, client.GetJSON(context.Background(), "/search", nil, &got))
	assert.Equal(t, "ncmec", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestGetJSONRejectsUnparsableBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>maintenance window</html>`)
	}))

	var got clientPayload
	err := client.GetJSON(context.Background(), "/search", nil, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode /search response")
	assert.Zero(t, got)
}

func TestPostJSONIgnoresServedContentType(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		// the header is deliberately left unset so Go sniffs text/plain
		io.WriteString(w, `{"name":"namus","count":1}`)
	}))

	var got clientPayload
	require.NoError(t, client.PostJSON(context.Background(), "/Search", map[string]int{"skip": 0}, &got))
	assert.Equal(t, "namus", got.Name)
	assert.Equal(t, 1, got.Count)
}

func TestGetJSONRateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	var got clientPayload
	err := client.GetJSON(context.Background(), "/search", nil, &got)
	require.ErrorIs(t, err, ErrRateLimited)
}
