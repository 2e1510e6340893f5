package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIngest(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordIngest(OutcomeCreated)
	m.RecordIngest(OutcomeCreated)
	m.RecordIngest(OutcomeRejected)

	body := scrape(t, m)
	assert.Contains(t, body, `aopkg_ingest_total{outcome="created"} 2`)
	assert.Contains(t, body, `aopkg_ingest_total{outcome="rejected"} 1`)
}

func TestRecordFetch(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordFetch(OutcomeError)

	assert.Contains(t, scrape(t, m), `aopkg_release_fetch_total{outcome="error"} 1`)
}

func TestNilMetricsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordIngest(OutcomeCreated)
	m.RecordFetch(OutcomeError)
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/api/packages/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/packages/helpbot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, `aopkg_http_requests_total{method="GET",path="/api/packages/{name}",status="200"} 1`)
	assert.NotContains(t, body, "helpbot")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
