// Package observability provides the Prometheus metrics of firewatch.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Verifier *metrics.VerifierMetrics
	Detector *metrics.DetectorMetrics
	Upstream *metrics.UpstreamMetrics
	Alerting *metrics.AlertingMetrics
	HTTP     *metrics.HTTPMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry,
// initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	verifierMetrics, err := metrics.NewVerifierMetrics(registry)
	if err != nil {
		return nil, err
	}
	detectorMetrics, err := metrics.NewDetectorMetrics(registry)
	if err != nil {
		return nil, err
	}
	upstreamMetrics, err := metrics.NewUpstreamMetrics(registry)
	if err != nil {
		return nil, err
	}
	alertingMetrics, err := metrics.NewAlertingMetrics(registry)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry: registry,
		Verifier: verifierMetrics,
		Detector: detectorMetrics,
		Upstream: upstreamMetrics,
		Alerting: alertingMetrics,
		HTTP:     httpMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      errorLog{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// errorLog routes promhttp errors to the telemetry logger.
type errorLog struct{}

func (errorLog) Println(v ...any) {
	logger.Global().Module("telemetry").Error("metrics handler error", logger.String("error", fmt.Sprint(v...)))
}
