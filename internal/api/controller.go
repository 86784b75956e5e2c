// Package api serves the firewatch HTTP API: media detection, detection
// streams over server-sent events, the satellite classifier and hotspot
// verification.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/firewatch-ai/firewatch/internal/alerting"
	"github.com/firewatch-ai/firewatch/internal/buildinfo"
	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability"
	"github.com/firewatch-ai/firewatch/internal/satellite"
	"github.com/firewatch-ai/firewatch/internal/stream"
	"github.com/firewatch-ai/firewatch/internal/verifier"
)

// HotspotSource lists current thermal hotspots.
type HotspotSource interface {
	FetchHotspots(ctx context.Context) ([]hotspot.RawRecord, error)
}

// Classifier scores satellite scenes as wildfire or not.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (detector.SatelliteResult, error)
}

// Analyzer combines imagery and temperature for a location.
type Analyzer interface {
	Analyze(ctx context.Context, lat, lon float64, day time.Time) (*satellite.Analysis, error)
}

// Controller holds the collaborators of the API handlers. Handlers whose
// collaborator is not configured answer 503.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	Detector   detector.Detector
	Streamer   *stream.Streamer
	Classifier Classifier
	Hotspots   HotspotSource
	Filter     *hotspot.Filter
	Verifier   *verifier.Verifier
	Analyzer   Analyzer
	Publisher  alerting.Publisher
	Metrics    *observability.Metrics

	uploadDir string
	now       func() time.Time
	log       logger.Logger
}

// Option configures the Controller.
type Option func(*Controller)

// WithDetector sets the fire/smoke detector used by the frame endpoint.
func WithDetector(d detector.Detector) Option {
	return func(c *Controller) { c.Detector = detector.Serialize(d) }
}

// WithStreamer sets the detection streamer for file uploads.
func WithStreamer(s *stream.Streamer) Option {
	return func(c *Controller) { c.Streamer = s }
}

// WithClassifier sets the satellite scene classifier.
func WithClassifier(cl Classifier) Option {
	return func(c *Controller) { c.Classifier = cl }
}

// WithHotspots wires the hotspot pipeline: source, filter and verifier.
func WithHotspots(src HotspotSource, filter *hotspot.Filter, v *verifier.Verifier) Option {
	return func(c *Controller) {
		c.Hotspots = src
		c.Filter = filter
		c.Verifier = v
	}
}

// WithAnalyzer sets the location analyzer.
func WithAnalyzer(a Analyzer) Option {
	return func(c *Controller) { c.Analyzer = a }
}

// WithPublisher publishes verified wildfires and stream fire frames.
func WithPublisher(p alerting.Publisher) Option {
	return func(c *Controller) { c.Publisher = p }
}

// WithMetrics records HTTP metrics and exposes /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.Metrics = m }
}

// WithUploadDir sets where uploads are staged while they are processed.
func WithUploadDir(dir string) Option {
	return func(c *Controller) { c.uploadDir = dir }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController registers the API routes on e.
func NewController(e *echo.Echo, settings *conf.Settings, opts ...Option) *Controller {
	c := &Controller{
		Echo:     e,
		Settings: settings,
		now:      time.Now,
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.POST("/detect/fire-smoke", c.DetectFireSmoke)
	c.Group.POST("/detect/fire-smoke/stream", c.StreamFireSmoke)
	c.Group.POST("/detect/frame", c.DetectFrame)
	c.Group.POST("/detect/satellite-fire", c.DetectSatelliteFire)

	c.Group.GET("/hotspots/verified", c.VerifiedHotspots)
	c.Group.GET("/hotspots/analyze", c.AnalyzeHotspot)

	if c.Metrics != nil && c.Settings.WebServer.Metrics {
		c.Echo.GET("/metrics", echo.WrapHandler(c.Metrics.Handler()))
	}
}

// HealthCheck reports which capabilities are loaded.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":     "healthy",
		"version":    buildinfo.Version,
		"build_date": buildinfo.BuildDate,
		"timestamp":  c.now().Format(time.RFC3339),
		"detector":   c.Detector != nil,
		"streamer":   c.Streamer != nil,
		"classifier": c.Classifier != nil,
		"hotspots":   c.Verifier != nil && c.Hotspots != nil,
		"analyzer":   c.Analyzer != nil,
		"alerting":   c.Publisher != nil,
	})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse builds an error body with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and responds with an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Warn("API error", fields...)
	}
	return ctx.JSON(code, resp)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryInput, errors.CategoryValidation, errors.CategoryFileParsing:
		return http.StatusBadRequest
	case errors.CategoryUpstream, errors.CategoryNetwork, errors.CategoryHTTP:
		return http.StatusBadGateway
	case errors.CategoryCancellation, errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (c *Controller) unavailable(ctx echo.Context, what string) error {
	return c.HandleError(ctx, nil, what+" is not configured", http.StatusServiceUnavailable)
}

func (c *Controller) streamThreshold() float32 {
	if c.Settings != nil && c.Settings.Detector.StreamThreshold > 0 {
		return c.Settings.Detector.StreamThreshold
	}
	return conf.DefaultStreamThreshold
}

func (c *Controller) frameThreshold() float32 {
	if c.Settings != nil && c.Settings.Detector.FrameThreshold > 0 {
		return c.Settings.Detector.FrameThreshold
	}
	return conf.DefaultFrameThreshold
}
