// Package verifier cross-checks thermal hotspots against satellite imagery
// with the fire/smoke detector and partitions them into verified fires,
// rejected false alarms and unverified alerts.
package verifier

import (
	"context"
	"time"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
	"github.com/firewatch-ai/firewatch/internal/satellite"
)

// ImagerySource returns imagery around a location. An Imagery without data is
// the explicit "no imagery" answer; errors mean the source could not be asked.
type ImagerySource interface {
	FetchImagery(ctx context.Context, lat, lon, radiusKm float64) (satellite.Imagery, error)
}

// Thresholds of the decision procedure.
type Thresholds struct {
	ThermalConfidence  float64 // thermal-only: confidence must reach this
	ThermalFRP         float64 // thermal-only: frp must reach this (MW)
	DetectorConfidence float32 // minimum detector confidence on imagery
	RadiusKm           float64 // imagery half-side around the hotspot
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ThermalConfidence:  conf.DefaultThermalConfidence,
		ThermalFRP:         conf.DefaultThermalFRP,
		DetectorConfidence: conf.DefaultDetectorConfidence,
		RadiusKm:           2,
	}
}

// Verifier runs the per-hotspot decision procedure. It is safe for concurrent
// use when its collaborators are; the detector is serialized if it is not.
type Verifier struct {
	imagery    ImagerySource
	detector   detector.Detector
	thresholds Thresholds
	workers    int
	metrics    *metrics.VerifierMetrics
	log        logger.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithThresholds overrides the decision thresholds.
func WithThresholds(t Thresholds) Option {
	return func(v *Verifier) { v.thresholds = t }
}

// WithWorkers sets how many hotspots are verified in parallel.
func WithWorkers(n int) Option {
	return func(v *Verifier) { v.workers = n }
}

// WithMetrics records outcomes and durations on m.
func WithMetrics(m *metrics.VerifierMetrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// New creates a Verifier around an imagery source and a detector.
func New(imagery ImagerySource, det detector.Detector, opts ...Option) *Verifier {
	v := &Verifier{
		imagery:    imagery,
		detector:   detector.Serialize(det),
		thresholds: DefaultThresholds(),
		workers:    1,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.workers < 1 {
		v.workers = 1
	}
	if v.log == nil {
		v.log = GetLogger()
	}
	return v
}

// NewFromSettings creates a Verifier configured from the verifier settings.
func NewFromSettings(settings conf.VerifierSettings, imagery ImagerySource, det detector.Detector, opts ...Option) *Verifier {
	base := []Option{
		WithThresholds(Thresholds{
			ThermalConfidence:  settings.ThermalConfidence,
			ThermalFRP:         settings.ThermalFRP,
			DetectorConfidence: settings.DetectorConfidence,
			RadiusKm:           settings.RadiusKm,
		}),
		WithWorkers(settings.Workers),
	}
	return New(imagery, det, append(base, opts...)...)
}

// thermalOnly reports whether the thermal signal alone is strong enough.
func (v *Verifier) thermalOnly(rec hotspot.Record) bool {
	return rec.Confidence >= v.thresholds.ThermalConfidence && rec.FRP >= v.thresholds.ThermalFRP
}

// Verify decides one hotspot and returns a copy carrying the result. It
// never fails: collaborator problems are folded into the result.
func (v *Verifier) Verify(ctx context.Context, rec hotspot.Record) hotspot.Record {
	start := time.Now()
	result := v.decide(ctx, rec)
	if v.metrics != nil {
		v.metrics.RecordOperation(metrics.OpVerify, metrics.StatusSuccess)
		v.metrics.RecordDuration(metrics.OpVerify, time.Since(start).Seconds())
		v.metrics.RecordOutcome(string(result.Status))
	}
	return rec.WithVerification(result)
}

func (v *Verifier) decide(ctx context.Context, rec hotspot.Record) hotspot.VerificationResult {
	log := v.log.With(
		logger.Float64("lat", rec.Lat),
		logger.Float64("lon", rec.Lon))

	thermal := hotspot.VerificationResult{
		IsVerified:        v.thermalOnly(rec),
		ThermalConfidence: rec.Confidence,
		Method:            hotspot.MethodThermalOnly,
		Status:            hotspot.StatusUnverifiedNoImagery,
	}

	if v.imagery == nil || v.detector == nil {
		return thermal
	}
	img, err := v.imagery.FetchImagery(ctx, rec.Lat, rec.Lon, v.thresholds.RadiusKm)
	if err != nil {
		log.Warn("imagery source failed, using thermal signal only", logger.Error(err))
		if v.metrics != nil {
			v.metrics.RecordError(metrics.OpImageryFetch, string(errors.CategoryOf(err)))
		}
		return thermal
	}
	if !img.Available() {
		log.Debug("no imagery for hotspot", logger.String("reason", img.Reason))
		return thermal
	}

	dets, err := v.detector.Detect(ctx, img.Data, v.thresholds.DetectorConfidence)
	if err != nil {
		log.Warn("detector failed on hotspot imagery", logger.Error(err))
		if v.metrics != nil {
			v.metrics.RecordError(metrics.OpDetect, string(errors.CategoryOf(err)))
		}
		thermal.Status = hotspot.StatusUnverifiedDetectorError
		thermal.Error = err.Error()
		return thermal
	}

	if len(dets) == 0 {
		return hotspot.VerificationResult{
			IsVerified:        false,
			ThermalConfidence: rec.Confidence,
			VisualConfidence:  0,
			Method:            hotspot.MethodVisualRejected,
			Status:            hotspot.StatusFalseAlarmRejected,
		}
	}
	return hotspot.VerificationResult{
		IsVerified:        true,
		ThermalConfidence: rec.Confidence,
		VisualConfidence:  detector.MeanConfidence(dets) * 100,
		Method:            hotspot.MethodThermalAndVisual,
		Status:            hotspot.StatusVerifiedWildfire,
	}
}
