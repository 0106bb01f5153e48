// Package metrics defines the Prometheus collectors for index builds,
// statistics passes, and the read API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kazoeru"

// Metrics holds the collectors and the registry they are registered on.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsCommitted   *prometheus.CounterVec
	FilesSkipped         *prometheus.CounterVec
	BuildsTotal          *prometheus.CounterVec
	BuildDuration        prometheus.Histogram
	StatisticsExtraction prometheus.Counter
	IndexDocuments       prometheus.Gauge
	IndexTerms           prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentsCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_committed_total",
				Help:      "Documents written to the index by operation (add, replace, delete).",
			},
			[]string{"op"},
		),
		FilesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Files left out of a build by reason (walk, read, decode).",
			},
			[]string{"reason"},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Index builds by outcome (created, updated, skipped, failed).",
			},
			[]string{"outcome"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Index build latency in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		StatisticsExtraction: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statistics_extractions_total",
				Help:      "Completed statistics passes.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_documents",
				Help:      "Documents visited by the last statistics pass.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_terms",
				Help:      "Distinct terms found by the last statistics pass.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DocumentsCommitted,
		m.FilesSkipped,
		m.BuildsTotal,
		m.BuildDuration,
		m.StatisticsExtraction,
		m.IndexDocuments,
		m.IndexTerms,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) DocumentCommitted(op string) {
	if m == nil {
		return
	}
	m.DocumentsCommitted.WithLabelValues(op).Inc()
}

func (m *Metrics) FileSkipped(reason string) {
	if m == nil {
		return
	}
	m.FilesSkipped.WithLabelValues(reason).Inc()
}

// BuildFinished records the outcome and latency of one build.
func (m *Metrics) BuildFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(outcome).Inc()
	m.BuildDuration.Observe(d.Seconds())
}

// StatisticsCollected records a finished statistics pass.
func (m *Metrics) StatisticsCollected(documents, terms int) {
	if m == nil {
		return
	}
	m.StatisticsExtraction.Inc()
	m.IndexDocuments.Set(float64(documents))
	m.IndexTerms.Set(float64(terms))
}

func (m *Metrics) RequestServed(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
