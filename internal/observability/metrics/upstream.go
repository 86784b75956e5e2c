package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Upstream source label values.
const (
	SourceFIRMS       = "firms"
	SourceImagery     = "imagery"
	SourceTemperature = "temperature"
)

// UpstreamMetrics contains Prometheus metrics for the FIRMS, imagery and temperature clients.
type UpstreamMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	cacheTotal      *prometheus.CounterVec
	unavailable     *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream client metrics.
func NewUpstreamMetrics(registry *prometheus.Registry) (*UpstreamMetrics, error) {
	m := &UpstreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register upstream metrics: %w", err)
	}
	return m, nil
}

func (m *UpstreamMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream requests by source and status",
		},
		[]string{"source", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream request latency",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
		},
		[]string{"source"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Total number of upstream errors by source and error type",
		},
		[]string{"source", "error_type"},
	)
	m.cacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_cache_lookups_total",
			Help: "Cache lookups by source and result (hit, miss)",
		},
		[]string{"source", "result"},
	)
	m.unavailable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_unavailable_total",
			Help: "Responses that carried no usable data by source and reason",
		},
		[]string{"source", "reason"},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *UpstreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.cacheTotal.Describe(ch)
	m.unavailable.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *UpstreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.cacheTotal.Collect(ch)
	m.unavailable.Collect(ch)
}

// RecordOperation implements Recorder; operation is the source name.
func (m *UpstreamMetrics) RecordOperation(operation, status string) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *UpstreamMetrics) RecordDuration(operation string, seconds float64) {
	m.requestDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *UpstreamMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordCache counts a cache lookup for source.
func (m *UpstreamMetrics) RecordCache(source string, hit bool) {
	result := StatusMiss
	if hit {
		result = StatusHit
	}
	m.cacheTotal.WithLabelValues(source, result).Inc()
}

// RecordUnavailable counts a response without usable data.
func (m *UpstreamMetrics) RecordUnavailable(source, reason string) {
	m.unavailable.WithLabelValues(source, reason).Inc()
}
