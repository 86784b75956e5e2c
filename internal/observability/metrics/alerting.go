package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AlertingMetrics contains Prometheus metrics for MQTT and push alert delivery.
type AlertingMetrics struct {
	registry *prometheus.Registry

	mqttConnected   prometheus.Gauge
	lastConnectTime prometheus.Gauge
	reconnects      prometheus.Counter
	messageSize     prometheus.Histogram

	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
}

// NewAlertingMetrics creates and registers alert delivery metrics.
func NewAlertingMetrics(registry *prometheus.Registry) (*AlertingMetrics, error) {
	m := &AlertingMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register alerting metrics: %w", err)
	}
	return m, nil
}

func (m *AlertingMetrics) initMetrics() {
	m.mqttConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "alerting_mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})
	m.lastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "alerting_mqtt_last_connect_time_seconds",
		Help: "Timestamp of the last successful MQTT connection",
	})
	m.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerting_mqtt_reconnect_attempts_total",
		Help: "Total number of MQTT reconnection attempts",
	})
	m.messageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "alerting_message_size_bytes",
		Help:    "Size of published alert payloads in bytes",
		Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount12),
	})
	m.deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_deliveries_total",
			Help: "Total number of alert deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)
	m.deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alerting_delivery_duration_seconds",
			Help:    "Time taken to deliver an alert by channel",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"channel"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_errors_total",
			Help: "Total number of alert delivery errors by channel and error type",
		},
		[]string{"channel", "error_type"},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *AlertingMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.mqttConnected.Desc()
	ch <- m.lastConnectTime.Desc()
	ch <- m.reconnects.Desc()
	ch <- m.messageSize.Desc()
	m.deliveriesTotal.Describe(ch)
	m.deliveryDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AlertingMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.mqttConnected
	ch <- m.lastConnectTime
	ch <- m.reconnects
	ch <- m.messageSize
	m.deliveriesTotal.Collect(ch)
	m.deliveryDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordOperation implements Recorder; operation is the delivery channel.
func (m *AlertingMetrics) RecordOperation(operation, status string) {
	m.deliveriesTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *AlertingMetrics) RecordDuration(operation string, seconds float64) {
	m.deliveryDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *AlertingMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// UpdateConnectionStatus updates the MQTT connection status and last connect time.
func (m *AlertingMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.mqttConnected.Set(1)
		m.lastConnectTime.SetToCurrentTime()
	} else {
		m.mqttConnected.Set(0)
	}
}

// IncrementReconnectAttempts counts an MQTT reconnection attempt.
func (m *AlertingMetrics) IncrementReconnectAttempts() {
	m.reconnects.Inc()
}

// ObserveMessageSize records the size of a published payload.
func (m *AlertingMetrics) ObserveMessageSize(sizeBytes int) {
	m.messageSize.Observe(float64(sizeBytes))
}

// StartDeliveryTimer starts a timer for a delivery on channel.
func (m *AlertingMetrics) StartDeliveryTimer(channel string) *DeliveryTimer {
	return &DeliveryTimer{start: time.Now(), channel: channel, metrics: m}
}

// DeliveryTimer measures one alert delivery.
type DeliveryTimer struct {
	start   time.Time
	channel string
	metrics *AlertingMetrics
}

// ObserveDuration stops the timer and records the duration.
func (t *DeliveryTimer) ObserveDuration() {
	t.metrics.RecordDuration(t.channel, time.Since(t.start).Seconds())
}
