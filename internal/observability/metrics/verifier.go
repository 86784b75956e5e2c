package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VerifierMetrics contains Prometheus metrics for hotspot verification.
type VerifierMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	outcomesTotal *prometheus.CounterVec
	batchSize     prometheus.Histogram
	lastRate      prometheus.Gauge
}

// NewVerifierMetrics creates and registers verifier metrics.
func NewVerifierMetrics(registry *prometheus.Registry) (*VerifierMetrics, error) {
	m := &VerifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register verifier metrics: %w", err)
	}
	return m, nil
}

func (m *VerifierMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifier_operations_total",
			Help: "Total number of verifier operations by operation and status",
		},
		[]string{"operation", "status"},
	)
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verifier_operation_duration_seconds",
			Help:    "Duration of verifier operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifier_errors_total",
			Help: "Total number of collaborator errors seen by the verifier",
		},
		[]string{"operation", "error_type"},
	)
	m.outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifier_hotspots_total",
			Help: "Total number of verified hotspots by resulting status",
		},
		[]string{"status"},
	)
	m.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verifier_batch_size",
		Help:    "Number of hotspots per verification batch",
		Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount12),
	})
	m.lastRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verifier_last_verification_rate_percent",
		Help: "Verification rate of the most recent batch",
	})
}

// Describe implements the prometheus.Collector interface.
func (m *VerifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.outcomesTotal.Describe(ch)
	m.batchSize.Describe(ch)
	m.lastRate.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *VerifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.outcomesTotal.Collect(ch)
	m.batchSize.Collect(ch)
	m.lastRate.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *VerifierMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *VerifierMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *VerifierMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordOutcome counts one hotspot routed with the given verification status.
func (m *VerifierMetrics) RecordOutcome(status string) {
	m.outcomesTotal.WithLabelValues(status).Inc()
}

// RecordBatch records the size and verification rate of a finished batch.
func (m *VerifierMetrics) RecordBatch(size int, rate float64) {
	m.batchSize.Observe(float64(size))
	m.lastRate.Set(rate)
}
