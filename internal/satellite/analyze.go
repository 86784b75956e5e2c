package satellite

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// Analysis is the combined imagery and temperature view of one location.
type Analysis struct {
	Lat               float64      `json:"lat"`
	Lon               float64      `json:"lon"`
	ImageryAvailable  bool         `json:"imagery_available"`
	Imagery           Imagery      `json:"imagery"`
	Temperature       *Temperature `json:"temperature_data"`
	AcquisitionDate   string       `json:"acquisition_date"`
	AnalysisTimestamp time.Time    `json:"analysis_timestamp"`
	Warnings          []string     `json:"warnings,omitempty"`
}

// Analyzer fetches imagery and temperature for a location concurrently.
type Analyzer struct {
	Imagery     *ImageryClient
	Temperature *TemperatureClient
	RadiusKm    float64
}

// Analyze gathers both sources. An upstream failure of one source becomes a
// warning; the analysis only fails when the location is invalid.
func (a *Analyzer) Analyze(ctx context.Context, lat, lon float64, day time.Time) (*Analysis, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.Newf("coordinates out of range: %g, %g", lat, lon).
			Component("satellite").
			Category(errors.CategoryInput).
			Build()
	}

	out := &Analysis{
		Lat:               lat,
		Lon:               lon,
		AcquisitionDate:   day.Format(time.DateOnly),
		AnalysisTimestamp: time.Now().UTC(),
	}

	var imageryErr, temperatureErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Imagery, imageryErr = a.Imagery.FetchImageryOn(gctx, lat, lon, a.RadiusKm, day)
		return nil
	})
	if a.Temperature != nil {
		g.Go(func() error {
			out.Temperature, temperatureErr = a.Temperature.FetchTemperature(gctx, lat, lon)
			return nil
		})
	}
	_ = g.Wait()

	out.ImageryAvailable = out.Imagery.Available()
	if imageryErr != nil {
		out.Warnings = append(out.Warnings, "imagery: "+imageryErr.Error())
	}
	if temperatureErr != nil {
		out.Warnings = append(out.Warnings, "temperature: "+temperatureErr.Error())
	}

	GetLogger().Info("hotspot analyzed",
		logger.Float64("lat", lat),
		logger.Float64("lon", lon),
		logger.Bool("imagery_available", out.ImageryAvailable),
		logger.Bool("has_temperature", out.Temperature != nil),
		logger.Int("warnings", len(out.Warnings)))
	return out, nil
}
