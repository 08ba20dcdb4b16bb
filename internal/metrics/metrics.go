// Package metrics exposes Prometheus instrumentation for the HTTP API
// and the parsing/indexing pipeline.
package metrics

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

// Metrics holds the collectors. Each instance carries its own registry so
// multiple instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ParsesTotal   *prometheus.CounterVec
	ParseFailures prometheus.Counter
	IndexedFiles  prometheus.Gauge
	IndexRuns     prometheus.Counter
}

// New creates the metric set on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ParsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgview_parses_total",
				Help: "Total number of on-demand message parses",
			},
			[]string{"outcome"},
		),

		ParseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "msgview_parse_failures_total",
				Help: "Total number of files unparsable in every format",
			},
		),

		IndexedFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msgview_indexed_files",
				Help: "Number of files currently in the summary index",
			},
		),

		IndexRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "msgview_index_runs_total",
				Help: "Total number of completed index synchronizations",
			},
		),
	}
}

// RecordParse records the outcome label of one on-demand parse
func (m *Metrics) RecordParse(outcome string) {
	m.ParsesTotal.WithLabelValues(outcome).Inc()
}

// RecordParseFailure records a file that no format could interpret
func (m *Metrics) RecordParseFailure() {
	m.ParseFailures.Inc()
}

// RecordIndexRun records a completed synchronization and the resulting
// index size.
func (m *Metrics) RecordIndexRun(indexedFiles int) {
	m.IndexRuns.Inc()
	m.IndexedFiles.Set(float64(indexedFiles))
}

// Handler serves the metric exposition endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware instruments every request with a count and duration, labeled
// by the matched chi route pattern rather than the raw URL so parameter
// values do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
