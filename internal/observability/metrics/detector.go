package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics contains Prometheus metrics for detector invocations and detection streams.
type DetectorMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	detectionsTotal *prometheus.CounterVec
	framesTotal     *prometheus.CounterVec
	activeStreams   prometheus.Gauge
}

// NewDetectorMetrics creates and registers detector metrics.
func NewDetectorMetrics(registry *prometheus.Registry) (*DetectorMetrics, error) {
	m := &DetectorMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detector metrics: %w", err)
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_operations_total",
			Help: "Total number of detector operations by operation and status",
		},
		[]string{"operation", "status"},
	)
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "detector_operation_duration_seconds",
			Help: "Duration of detector operations",
			// 1ms to ~4s covers single inferences on CPU
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_errors_total",
			Help: "Total number of detector errors",
		},
		[]string{"operation", "error_type"},
	)
	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_detections_total",
			Help: "Total number of detections by class id",
		},
		[]string{"class"},
	)
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_stream_frames_total",
			Help: "Total number of stream frames processed",
		},
		[]string{"has_fire"},
	)
	m.activeStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_active_streams",
		Help: "Number of detection streams currently running",
	})
}

// Describe implements the prometheus.Collector interface.
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.detectionsTotal.Describe(ch)
	m.framesTotal.Describe(ch)
	m.activeStreams.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.detectionsTotal.Collect(ch)
	m.framesTotal.Collect(ch)
	m.activeStreams.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *DetectorMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DetectorMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DetectorMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordDetection counts one detection of class.
func (m *DetectorMetrics) RecordDetection(class int) {
	m.detectionsTotal.WithLabelValues(fmt.Sprint(class)).Inc()
}

// RecordFrame counts one processed stream frame.
func (m *DetectorMetrics) RecordFrame(hasFire bool) {
	m.framesTotal.WithLabelValues(fmt.Sprint(hasFire)).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *DetectorMetrics) StreamStarted() { m.activeStreams.Inc() }

// StreamEnded decrements the active stream gauge.
func (m *DetectorMetrics) StreamEnded() { m.activeStreams.Dec() }
