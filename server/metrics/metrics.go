// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	DispatchTotal       *prometheus.CounterVec
	BackendDuration     *prometheus.HistogramVec
	BackendErrors       *prometheus.CounterVec
	ExtractionFallbacks *prometheus.CounterVec
	PromptTokens        *prometheus.HistogramVec
	QueueWait           prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptgate_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptgate_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "promptgate_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptgate_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptgate_rate_limit_hits_total",
				Help: "Total number of rate limit hits by client",
			},
			[]string{"client"},
		),
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptgate_dispatch_requests_total",
				Help: "Dispatched requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptgate_backend_request_duration_seconds",
				Help:    "Duration of backend chat calls in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"model"},
		),
		BackendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptgate_backend_errors_total",
				Help: "Backend failures by error type",
			},
			[]string{"error_type"},
		),
		ExtractionFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptgate_extraction_fallbacks_total",
				Help: "Code responses without a fenced block, by language",
			},
			[]string{"language"},
		),
		PromptTokens: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptgate_prompt_tokens",
				Help:    "Tokens in composed prompts by kind",
				Buckets: prometheus.ExponentialBuckets(16, 2, 10),
			},
			[]string{"kind"},
		),
		QueueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "promptgate_queue_wait_seconds",
				Help:    "Time spent waiting for an admission slot",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize some default metrics
	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	m.ActiveRequests.WithLabelValues("queued").Add(0)
	m.ActiveRequests.WithLabelValues("processing").Add(0)
	for _, kind := range []string{"chat", "code"} {
		m.DispatchTotal.WithLabelValues(kind, "success").Add(0)
		m.DispatchTotal.WithLabelValues(kind, "failure").Add(0)
	}

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false, // Disable OpenMetrics format to avoid escaping=values
	})
}

// The recorders below accept a nil receiver so callers can run without metrics.

// RecordDispatch counts one completed dispatch.
func (m *Metrics) RecordDispatch(kind, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveBackend records the duration of one backend call.
func (m *Metrics) ObserveBackend(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordBackendError counts a backend failure by its error type.
func (m *Metrics) RecordBackendError(errorType string) {
	if m == nil {
		return
	}
	m.BackendErrors.WithLabelValues(errorType).Inc()
}

// RecordExtractionFallback counts a code response returned without a fenced block.
func (m *Metrics) RecordExtractionFallback(language string) {
	if m == nil {
		return
	}
	m.ExtractionFallbacks.WithLabelValues(language).Inc()
}

// ObservePromptTokens records the token count of a composed prompt.
func (m *Metrics) ObservePromptTokens(kind string, n int) {
	if m == nil {
		return
	}
	m.PromptTokens.WithLabelValues(kind).Observe(float64(n))
}
