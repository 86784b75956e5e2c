package satellite

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/httpclient"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// Temperature is a surface air temperature reading.
type Temperature struct {
	Celsius         float64 `json:"temperature_celsius"`
	Kelvin          float64 `json:"temperature_kelvin"`
	AcquisitionDate string  `json:"acquisition_date"`
	Source          string  `json:"source"`
}

type openMeteoResponse struct {
	Current *struct {
		Time          string   `json:"time"`
		Temperature2m *float64 `json:"temperature_2m"`
	} `json:"current"`
}

// TemperatureClient reads current temperatures from the Open-Meteo forecast API.
type TemperatureClient struct {
	settings conf.TemperatureSettings
	http     *httpclient.Client
	cache    *cache.Cache
	metrics  *metrics.UpstreamMetrics
}

// NewTemperatureClient creates a temperature client with an in-memory cache
// keyed by location rounded to 0.01 degrees.
func NewTemperatureClient(settings conf.TemperatureSettings, client *httpclient.Client, m *metrics.UpstreamMetrics) *TemperatureClient {
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Timeout})
	}
	ttl := settings.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TemperatureClient{
		settings: settings,
		http:     client,
		cache:    cache.New(ttl, ttl*2),
		metrics:  m,
	}
}

// FetchTemperature returns the current temperature at (lat, lon), or nil when
// the source has no reading for the location.
func (c *TemperatureClient) FetchTemperature(ctx context.Context, lat, lon float64) (*Temperature, error) {
	if !c.settings.Enabled {
		return nil, nil
	}

	key := fmt.Sprintf("%.2f,%.2f", lat, lon)
	if cached, found := c.cache.Get(key); found {
		if c.metrics != nil {
			c.metrics.RecordCache(metrics.SourceTemperature, true)
		}
		if t, ok := cached.(*Temperature); ok {
			return t, nil
		}
	}
	if c.metrics != nil {
		c.metrics.RecordCache(metrics.SourceTemperature, false)
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m")
	q.Set("timezone", "UTC")
	reqURL := c.settings.Endpoint + "?" + q.Encode()

	start := time.Now()
	body, _, err := c.http.Fetch(ctx, reqURL, "satellite")
	if c.metrics != nil {
		c.metrics.RecordDuration(metrics.SourceTemperature, time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordOperation(metrics.SourceTemperature, metrics.StatusError)
			c.metrics.RecordError(metrics.SourceTemperature, string(errors.CategoryOf(err)))
		}
		return nil, err
	}

	var parsed openMeteoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.New(fmt.Errorf("invalid temperature response: %w", err)).
			Component("satellite").
			Category(errors.CategoryUpstream).
			LocationContext(lat, lon).
			Build()
	}
	if c.metrics != nil {
		c.metrics.RecordOperation(metrics.SourceTemperature, metrics.StatusSuccess)
	}

	var reading *Temperature
	if parsed.Current != nil && parsed.Current.Temperature2m != nil {
		celsius := *parsed.Current.Temperature2m
		reading = &Temperature{
			Celsius:         round2(celsius),
			Kelvin:          round2(celsius + 273.15),
			AcquisitionDate: parsed.Current.Time,
			Source:          "open-meteo",
		}
	} else if c.metrics != nil {
		c.metrics.RecordUnavailable(metrics.SourceTemperature, "no_reading")
	}

	c.cache.Set(key, reading, cache.DefaultExpiration)
	GetLogger().Debug("temperature fetched",
		logger.Float64("lat", lat),
		logger.Float64("lon", lon),
		logger.Bool("has_reading", reading != nil))
	return reading, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
