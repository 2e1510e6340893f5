// Package telemetry exposes Prometheus instrumentation for the registry.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcome labels.
const (
	OutcomeCreated   = "created"
	OutcomeRejected  = "rejected"
	OutcomeForbidden = "forbidden"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Release fetch outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeNoRelease = "no_release"
	OutcomeTooLarge  = "too_large"
	OutcomeRedirect  = "redirect"
)

// Metrics holds the Prometheus instruments for the registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ingestTotal *prometheus.CounterVec
	fetchTotal  *prometheus.CounterVec
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aopkg_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aopkg_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ingestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aopkg_ingest_total",
				Help: "Package ingestion attempts by outcome",
			},
			[]string{"outcome"},
		),
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aopkg_release_fetch_total",
				Help: "GitHub release fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordIngest counts one ingestion attempt with the given outcome.
func (m *Metrics) RecordIngest(outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
}

// RecordFetch counts one release fetch attempt with the given outcome.
func (m *Metrics) RecordFetch(outcome string) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
