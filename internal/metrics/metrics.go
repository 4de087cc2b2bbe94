package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// RenderTotal counts render requests by outcome
	RenderTotal *prometheus.CounterVec
	// EncodeDuration tracks encoder wall time
	EncodeDuration *prometheus.HistogramVec
	// ExpiryScheduled counts files handed to the expiry scheduler
	ExpiryScheduled prometheus.Counter
	// ExpiryDeleted counts expiry attempts by result
	ExpiryDeleted *prometheus.CounterVec
	// ExpiryPending tracks timers waiting to fire
	ExpiryPending prometheus.Gauge
	// TokenExchanges counts calls to the provider token endpoint
	TokenExchanges *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		RenderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "render_requests_total",
				Help:      "Total number of render requests by outcome",
			},
			[]string{"outcome"},
		),
		EncodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "encode_duration_seconds",
				Help:      "Time spent running the encoder",
				Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
			},
			[]string{"status"},
		),
		ExpiryScheduled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expiry_scheduled_total",
				Help:      "Total number of files scheduled for deletion",
			},
		),
		ExpiryDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expiry_deletions_total",
				Help:      "Total number of expiry deletions by result",
			},
			[]string{"result"},
		),
		ExpiryPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "expiry_pending",
				Help:      "Number of files waiting for deletion",
			},
		),
		TokenExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_exchanges_total",
				Help:      "Total number of provider token endpoint calls",
			},
			[]string{"grant", "outcome"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.RenderTotal,
		m.EncodeDuration,
		m.ExpiryScheduled,
		m.ExpiryDeleted,
		m.ExpiryPending,
		m.TokenExchanges,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for diagnostics and tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// RecordRender records the outcome of a render request
// (ok, invalid, missing_asset, encode_failed).
func (m *Metrics) RecordRender(outcome string) {
	m.RenderTotal.WithLabelValues(outcome).Inc()
}

// RecordEncode records one encoder run.
func (m *Metrics) RecordEncode(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EncodeDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordExpiryScheduled counts a newly scheduled deletion.
func (m *Metrics) RecordExpiryScheduled() {
	m.ExpiryScheduled.Inc()
}

// RecordExpiryDeleted records a deletion attempt (deleted, missing, error).
func (m *Metrics) RecordExpiryDeleted(result string) {
	m.ExpiryDeleted.WithLabelValues(result).Inc()
}

// SetExpiryPending sets the number of pending deletions.
func (m *Metrics) SetExpiryPending(n int) {
	m.ExpiryPending.Set(float64(n))
}

// RecordTokenExchange records a token endpoint call
// (grant is authorization_code or refresh_token).
func (m *Metrics) RecordTokenExchange(grant, outcome string) {
	m.TokenExchanges.WithLabelValues(grant, outcome).Inc()
}
