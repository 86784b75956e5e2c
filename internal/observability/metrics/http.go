package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the HTTP API.
type HTTPMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sseActiveConnections prometheus.Gauge
	sseMessagesSent      *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP handler metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status_code"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"route", "method"},
	)
	m.sseActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_sse_active_connections",
		Help: "Number of open server-sent event streams",
	})
	m.sseMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_sse_messages_sent_total",
			Help: "Total number of server-sent events by event kind",
		},
		[]string{"kind"},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.sseActiveConnections.Describe(ch)
	m.sseMessagesSent.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.sseActiveConnections.Collect(ch)
	m.sseMessagesSent.Collect(ch)
}

// RecordRequest records one finished HTTP request.
func (m *HTTPMetrics) RecordRequest(route, method string, status int, seconds float64) {
	m.requestsTotal.WithLabelValues(route, method, fmt.Sprint(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(seconds)
}

// SSEConnected increments the open SSE stream gauge.
func (m *HTTPMetrics) SSEConnected() { m.sseActiveConnections.Inc() }

// SSEDisconnected decrements the open SSE stream gauge.
func (m *HTTPMetrics) SSEDisconnected() { m.sseActiveConnections.Dec() }

// RecordSSEMessage counts one sent event of kind (frame, done, error).
func (m *HTTPMetrics) RecordSSEMessage(kind string) {
	m.sseMessagesSent.WithLabelValues(kind).Inc()
}
