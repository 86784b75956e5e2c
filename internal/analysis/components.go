// Package analysis assembles the firewatch pipeline from Settings and runs it
// for the verify, stream and serve commands.
package analysis

import (
	"context"
	"errors"

	"github.com/firewatch-ai/firewatch/internal/alerting"
	"github.com/firewatch-ai/firewatch/internal/api"
	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/firms"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/httpclient"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/media"
	"github.com/firewatch-ai/firewatch/internal/observability"
	"github.com/firewatch-ai/firewatch/internal/satellite"
	"github.com/firewatch-ai/firewatch/internal/stream"
	"github.com/firewatch-ai/firewatch/internal/verifier"
)

// Components is the wired pipeline. Optional parts are nil when disabled or
// when their model failed to load; the rest keeps working without them.
type Components struct {
	Settings *conf.Settings
	Metrics  *observability.Metrics
	HTTP     *httpclient.Client

	FIRMS       *firms.Client
	Imagery     *satellite.ImageryClient
	Temperature *satellite.TemperatureClient
	Analyzer    *satellite.Analyzer

	Detector   detector.Detector
	Classifier *detector.SatelliteClassifier
	Decoder    *media.FFmpeg

	Filter    *hotspot.Filter
	Verifier  *verifier.Verifier
	Streamer  *stream.Streamer
	Publisher alerting.Publisher

	closers []func() error
}

// Build wires every component enabled in settings. Alerting channels are
// connected with ctx.
func Build(ctx context.Context, settings *conf.Settings) (*Components, error) {
	log := GetLogger()

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}
	policy, err := hotspot.ParsePolicy(settings.Hotspots.MalformedPolicy)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Settings: settings,
		Metrics:  m,
		HTTP:     httpclient.New(nil),
		Decoder:  media.NewFFmpeg(settings.Media),
	}
	c.closers = append(c.closers, func() error { c.HTTP.Close(); return nil })

	c.FIRMS = firms.NewClient(settings.FIRMS, c.HTTP, m.Upstream)
	c.Filter = hotspot.NewFilter(settings.Hotspots.MinConfidence, settings.Hotspots.MinFRP, hotspot.WithPolicy(policy))

	var imagery verifier.ImagerySource
	if settings.Imagery.Enabled {
		c.Imagery = satellite.NewImageryClient(settings.Imagery, c.HTTP, satellite.WithImageryMetrics(m.Upstream))
		imagery = c.Imagery
		if settings.Temperature.Enabled {
			c.Temperature = satellite.NewTemperatureClient(settings.Temperature, c.HTTP, m.Upstream)
		}
		c.Analyzer = &satellite.Analyzer{
			Imagery:     c.Imagery,
			Temperature: c.Temperature,
			RadiusKm:    settings.Verifier.RadiusKm,
		}
	}

	if settings.Detector.ModelPath != "" {
		yolo, err := detector.NewYOLO(settings.Detector)
		if err != nil {
			log.Error("fire/smoke detector unavailable, hotspots fall back to thermal-only verification",
				logger.String("model_path", settings.Detector.ModelPath),
				logger.Error(err))
		} else {
			c.Detector = yolo
			c.closers = append(c.closers, yolo.Close)
		}
	}
	if settings.Detector.ClassifierModelPath != "" {
		cl, err := detector.NewSatelliteClassifier(settings.Detector)
		if err != nil {
			log.Error("satellite classifier unavailable",
				logger.String("model_path", settings.Detector.ClassifierModelPath),
				logger.Error(err))
		} else {
			c.Classifier = cl
			c.closers = append(c.closers, cl.Close)
		}
	}

	c.Verifier = verifier.NewFromSettings(settings.Verifier, imagery, c.Detector, verifier.WithMetrics(m.Verifier))
	if c.Detector != nil {
		c.Streamer = stream.New(c.Detector, c.Decoder, stream.WithMetrics(m.Detector))
	}

	c.Publisher = alerting.FromSettings(ctx, settings, m.Alerting)
	if c.Publisher != nil {
		c.closers = append(c.closers, func() error { c.Publisher.Close(); return nil })
	}

	log.Info("pipeline ready",
		logger.Bool("imagery", c.Imagery != nil),
		logger.Bool("temperature", c.Temperature != nil),
		logger.Bool("detector", c.Detector != nil),
		logger.Bool("classifier", c.Classifier != nil),
		logger.Bool("alerting", c.Publisher != nil))
	return c, nil
}

// APIOptions hands the enabled components to the HTTP API.
func (c *Components) APIOptions() []api.Option {
	opts := []api.Option{
		api.WithHotspots(c.FIRMS, c.Filter, c.Verifier),
		api.WithMetrics(c.Metrics),
	}
	if c.Detector != nil {
		opts = append(opts, api.WithDetector(c.Detector))
	}
	if c.Streamer != nil {
		opts = append(opts, api.WithStreamer(c.Streamer))
	}
	if c.Classifier != nil {
		opts = append(opts, api.WithClassifier(c.Classifier))
	}
	if c.Analyzer != nil {
		opts = append(opts, api.WithAnalyzer(c.Analyzer))
	}
	if c.Publisher != nil {
		opts = append(opts, api.WithPublisher(c.Publisher))
	}
	return opts
}

// Close releases models, alerting connections and idle HTTP connections, in
// reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
