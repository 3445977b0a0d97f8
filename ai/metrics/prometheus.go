// Package metrics provides Prometheus metrics export for the turn pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports turn pipeline metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Turn metrics
	turnLatency *prometheus.HistogramVec
	turnsTotal  *prometheus.CounterVec
	turnsActive prometheus.Gauge

	// Tool execution metrics
	toolExecutions *prometheus.CounterVec
	toolLatency    *prometheus.HistogramVec
	toolErrors     *prometheus.CounterVec

	// Routing and injection metrics
	classifications *prometheus.CounterVec
	injections      *prometheus.CounterVec
	decompositions  *prometheus.CounterVec

	// Generation metrics
	generationLatency *prometheus.HistogramVec
	generationTokens  *prometheus.CounterVec
	generationRetries *prometheus.CounterVec
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
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
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

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "turn",
			Name:      "latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"class", "mode"},
	)

	e.turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "turn",
			Name:      "requests_total",
			Help:      "Total number of turns processed",
		},
		[]string{"class", "mode", "status"},
	)

	e.turnsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "turn",
			Name:      "active",
			Help:      "Number of turns currently in flight",
		},
	)

	e.toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total number of tool executions",
		},
		[]string{"tool_name", "source", "status"},
	)

	e.toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "tool",
			Name:      "latency_seconds",
			Help:      "Tool execution latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"tool_name"},
	)

	e.toolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "tool",
			Name:      "errors_total",
			Help:      "Total number of tool execution errors",
		},
		[]string{"tool_name", "error_kind"},
	)

	e.classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "routing",
			Name:      "classifications_total",
			Help:      "Total number of intent classifications",
		},
		[]string{"class"},
	)

	e.injections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "routing",
			Name:      "injections_total",
			Help:      "Total number of deterministic tool injections",
		},
		[]string{"tool_name"},
	)

	e.decompositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "turn",
			Name:      "decompositions_total",
			Help:      "Total number of turns routed through decomposition",
		},
		[]string{"trigger"},
	)

	e.generationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "generation",
			Name:      "latency_seconds",
			Help:      "Backend generation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model", "class"},
	)

	e.generationTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Total generation tokens by type",
		},
		[]string{"model", "token_type"},
	)

	e.generationRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "generation",
			Name:      "retries_total",
			Help:      "Total generation retries by failure kind",
		},
		[]string{"model", "failure"},
	)

	registry.MustRegister(
		e.turnLatency,
		e.turnsTotal,
		e.turnsActive,
		e.toolExecutions,
		e.toolLatency,
		e.toolErrors,
		e.classifications,
		e.injections,
		e.decompositions,
		e.generationLatency,
		e.generationTokens,
		e.generationRetries,
	)

	return e
}

// RecordTurn records one completed turn.
func (e *PrometheusExporter) RecordTurn(class, mode string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	e.turnsTotal.WithLabelValues(class, mode, status).Inc()
	e.turnLatency.WithLabelValues(class, mode).Observe(latency.Seconds())
}

// TurnStarted increments the in-flight turn gauge.
func (e *PrometheusExporter) TurnStarted() {
	e.turnsActive.Inc()
}

// TurnFinished decrements the in-flight turn gauge.
func (e *PrometheusExporter) TurnFinished() {
	e.turnsActive.Dec()
}

// RecordToolExecution records one tool execution.
func (e *PrometheusExporter) RecordToolExecution(toolName, source string, latency time.Duration, success bool, errorKind string) {
	status := "success"
	if !success {
		status = "error"
		if errorKind != "" {
			e.toolErrors.WithLabelValues(toolName, errorKind).Inc()
		}
	}

	e.toolExecutions.WithLabelValues(toolName, source, status).Inc()
	e.toolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
}

// RecordClassification records an intent classification outcome.
func (e *PrometheusExporter) RecordClassification(class string) {
	e.classifications.WithLabelValues(class).Inc()
}

// RecordInjection records a deterministic injection.
func (e *PrometheusExporter) RecordInjection(toolName string) {
	e.injections.WithLabelValues(toolName).Inc()
}

// RecordDecomposition records a turn entering decomposition.
// Trigger is "compound" or "timeout".
func (e *PrometheusExporter) RecordDecomposition(trigger string) {
	e.decompositions.WithLabelValues(trigger).Inc()
}

// RecordGeneration records one backend generation call.
func (e *PrometheusExporter) RecordGeneration(model, class string, latency time.Duration) {
	e.generationLatency.WithLabelValues(model, class).Observe(latency.Seconds())
}

// RecordGenerationTokens records token usage for a generation call.
func (e *PrometheusExporter) RecordGenerationTokens(model, tokenType string, count int) {
	e.generationTokens.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordGenerationRetry records a retried generation attempt.
func (e *PrometheusExporter) RecordGenerationRetry(model, failure string) {
	e.generationRetries.WithLabelValues(model, failure).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
