package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fundwatch/internal/scrape"
)

type fakeSource struct {
	snapshot map[string]scrape.ProjectRecord
}

func (f *fakeSource) Snapshot() map[string]scrape.ProjectRecord {
	return f.snapshot
}

func TestServer_ListProjects_ReturnsSnapshot(t *testing.T) {
	t.Parallel()

	source := &fakeSource{snapshot: map[string]scrape.ProjectRecord{
		"4711": {
			ID:            "4711",
			Title:         "Bakkerij de Molen",
			Rating:        "AAA",
			Interest:      6.5,
			AdjustedYield: 3.45,
			TermMonths:    36,
			FoundAt:       time.Unix(1000, 0).UTC(),
		},
	}}
	srv := NewServer(source, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]scrape.ProjectRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "Bakkerij de Molen", got["4711"].Title)
	require.InDelta(t, 3.45, got["4711"].AdjustedYield, 1e-9)
}

func TestServer_ListProjects_EmptyStore(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSource{snapshot: map[string]scrape.ProjectRecord{}}, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "{}", rec.Body.String())
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSource{}, zap.NewNop())

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_RequestIDHeaderSet(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSource{}, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_UnknownRouteIs404(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSource{}, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/other", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
