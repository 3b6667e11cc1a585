// Package metrics provides Prometheus metrics export for the discovery
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports discovery metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Search metrics
	searchLatency  *prometheus.HistogramVec
	searchRequests *prometheus.CounterVec
	searchResults  *prometheus.HistogramVec

	// Embedding provider metrics
	embedLatency *prometheus.HistogramVec
	embedErrors  *prometheus.CounterVec

	// Enrichment metrics
	enrichmentGaps prometheus.Counter
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "circleshare",
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Semantic search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"modality"},
	)

	e.searchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circleshare",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of semantic search requests",
		},
		[]string{"modality", "status"},
	)

	e.searchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "circleshare",
			Subsystem: "search",
			Name:      "results",
			Help:      "Result count per successful search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"modality"},
	)

	e.embedLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "circleshare",
			Subsystem: "embedding",
			Name:      "latency_seconds",
			Help:      "Embedding provider call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"operation"},
	)

	e.embedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circleshare",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Total number of embedding provider failures",
		},
		[]string{"operation"},
	)

	e.enrichmentGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "circleshare",
			Subsystem: "search",
			Name:      "enrichment_gaps_total",
			Help:      "Ranked items dropped because enrichment data was missing",
		},
	)

	registry.MustRegister(
		e.searchLatency,
		e.searchRequests,
		e.searchResults,
		e.embedLatency,
		e.embedErrors,
		e.enrichmentGaps,
	)

	return e
}

// RecordSearch records one search request outcome.
func (e *PrometheusExporter) RecordSearch(modality string, latency time.Duration, resultCount int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.searchRequests.WithLabelValues(modality, status).Inc()
	e.searchLatency.WithLabelValues(modality).Observe(latency.Seconds())
	if success {
		e.searchResults.WithLabelValues(modality).Observe(float64(resultCount))
	}
}

// RecordEmbedding records one embedding provider call.
func (e *PrometheusExporter) RecordEmbedding(operation string, latency time.Duration, err error) {
	e.embedLatency.WithLabelValues(operation).Observe(latency.Seconds())
	if err != nil {
		e.embedErrors.WithLabelValues(operation).Inc()
	}
}

// RecordEnrichmentGap counts a ranked item omitted during enrichment.
func (e *PrometheusExporter) RecordEnrichmentGap() {
	e.enrichmentGaps.Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
