// Package satellite retrieves true-color satellite imagery around a hotspot
// and the current surface temperature at a location.
package satellite

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for WMS tiles
	_ "image/png"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/httpclient"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

const kmPerDegreeLat = 111.32

// Reasons a tile is reported unavailable.
const (
	ReasonDisabled    = "disabled"
	ReasonNoContent   = "no_content"
	ReasonNotFound    = "not_found"
	ReasonNotImage    = "not_image"
	ReasonBlank       = "blank"
	ReasonUndecodable = "undecodable"
)

// Imagery is the answer of an imagery source for one location. A zero Data
// slice is the explicit "no imagery" answer; Reason says why.
type Imagery struct {
	Data        []byte     `json:"-"`
	ContentType string     `json:"content_type,omitempty"`
	Layer       string     `json:"layer,omitempty"`
	Date        string     `json:"date"`
	BBox        [4]float64 `json:"bbox"` // min lon, min lat, max lon, max lat
	Reason      string     `json:"reason,omitempty"`
}

// Available reports whether the tile carries usable pixels.
func (i Imagery) Available() bool { return len(i.Data) > 0 }

// ImageryClient fetches WMS GetMap tiles, NASA GIBS by default.
type ImageryClient struct {
	settings conf.ImagerySettings
	http     *httpclient.Client
	limiter  *rate.Limiter
	metrics  *metrics.UpstreamMetrics
	now      func() time.Time
}

// ImageryOption configures an ImageryClient.
type ImageryOption func(*ImageryClient)

// WithImageryMetrics records requests on m.
func WithImageryMetrics(m *metrics.UpstreamMetrics) ImageryOption {
	return func(c *ImageryClient) { c.metrics = m }
}

// WithClock overrides the clock used for the TIME parameter.
func WithClock(now func() time.Time) ImageryOption {
	return func(c *ImageryClient) { c.now = now }
}

// NewImageryClient creates an imagery client. A nil client gets its own httpclient.
func NewImageryClient(settings conf.ImagerySettings, client *httpclient.Client, opts ...ImageryOption) *ImageryClient {
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Timeout})
	}
	limit := rate.Inf
	if settings.RateLimit > 0 {
		limit = rate.Limit(settings.RateLimit)
	}
	c := &ImageryClient{
		settings: settings,
		http:     client,
		limiter:  rate.NewLimiter(limit, max(1, settings.Burst)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchImagery returns the tile covering radiusKm around (lat, lon) for the
// configured lookback day. Errors are reserved for transport and server failures.
func (c *ImageryClient) FetchImagery(ctx context.Context, lat, lon, radiusKm float64) (Imagery, error) {
	day := c.now().UTC().AddDate(0, 0, -c.settings.LookbackDays)
	return c.FetchImageryOn(ctx, lat, lon, radiusKm, day)
}

// FetchImageryOn is FetchImagery for an explicit acquisition day.
func (c *ImageryClient) FetchImageryOn(ctx context.Context, lat, lon, radiusKm float64, day time.Time) (Imagery, error) {
	bbox := BoundingBox(lat, lon, radiusKm)
	result := Imagery{
		Layer: c.settings.Layer,
		Date:  day.Format(time.DateOnly),
		BBox:  bbox,
	}
	if !c.settings.Enabled {
		result.Reason = ReasonDisabled
		return result, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result, errors.New(fmt.Errorf("imagery rate limiter: %w", err)).
			Component("satellite").
			Category(errors.CategoryCancellation).
			Build()
	}

	reqURL := c.getMapURL(bbox, result.Date)
	start := time.Now()
	body, resp, err := c.http.Fetch(ctx, reqURL, "satellite")
	c.recordDuration(time.Since(start))
	if err != nil {
		if code := httpclient.StatusCode(err); code == http.StatusNotFound {
			return c.unavailable(result, ReasonNotFound), nil
		}
		c.recordError(err)
		return result, err
	}

	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return c.unavailable(result, ReasonNoContent), nil
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "image/") {
		// WMS servers report missing layers and dates as XML service exceptions.
		GetLogger().Debug("imagery response is not an image",
			logger.String("content_type", mediaType),
			logger.String("snippet", snippet(body)))
		return c.unavailable(result, ReasonNotImage), nil
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return c.unavailable(result, ReasonUndecodable), nil
	}
	if frac := BlankFraction(img); frac >= c.settings.BlankThreshold {
		GetLogger().Debug("imagery tile is blank",
			logger.Float64("lat", lat),
			logger.Float64("lon", lon),
			logger.Float64("blank_fraction", frac))
		return c.unavailable(result, ReasonBlank), nil
	}

	result.Data = body
	result.ContentType = mediaType
	if c.metrics != nil {
		c.metrics.RecordOperation(metrics.SourceImagery, metrics.StatusSuccess)
	}
	return result, nil
}

func (c *ImageryClient) getMapURL(bbox [4]float64, date string) string {
	q := url.Values{}
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", "1.3.0")
	q.Set("LAYERS", c.settings.Layer)
	q.Set("STYLES", "")
	q.Set("CRS", "EPSG:4326")
	// WMS 1.3.0 with EPSG:4326 uses latitude-first axis order.
	q.Set("BBOX", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bbox[1], bbox[0], bbox[3], bbox[2]))
	q.Set("WIDTH", fmt.Sprint(c.settings.Width))
	q.Set("HEIGHT", fmt.Sprint(c.settings.Height))
	q.Set("FORMAT", "image/jpeg")
	q.Set("TIME", date)
	return c.settings.Endpoint + "?" + q.Encode()
}

func (c *ImageryClient) unavailable(result Imagery, reason string) Imagery {
	result.Reason = reason
	if c.metrics != nil {
		c.metrics.RecordOperation(metrics.SourceImagery, metrics.StatusSuccess)
		c.metrics.RecordUnavailable(metrics.SourceImagery, reason)
	}
	return result
}

func (c *ImageryClient) recordDuration(d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordDuration(metrics.SourceImagery, d.Seconds())
	}
}

func (c *ImageryClient) recordError(err error) {
	if c.metrics != nil {
		c.metrics.RecordOperation(metrics.SourceImagery, metrics.StatusError)
		c.metrics.RecordError(metrics.SourceImagery, string(errors.CategoryOf(err)))
	}
}

// BoundingBox returns min lon, min lat, max lon, max lat of a square with
// half-side radiusKm centered on (lat, lon), clamped to valid coordinates.
func BoundingBox(lat, lon, radiusKm float64) [4]float64 {
	dLat := radiusKm / kmPerDegreeLat
	cos := math.Cos(lat * math.Pi / 180)
	dLon := dLat
	if cos > 1e-6 {
		dLon = radiusKm / (kmPerDegreeLat * cos)
	}
	return [4]float64{
		math.Max(-180, lon-dLon),
		math.Max(-90, lat-dLat),
		math.Min(180, lon+dLon),
		math.Min(90, lat+dLat),
	}
}

// BlankFraction returns the share of pixels that carry no data: fully
// transparent, or near-black as GIBS renders gaps between swaths.
func BlankFraction(img image.Image) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 1
	}
	blank := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 || (r < 0x0800 && g < 0x0800 && bl < 0x0800) {
				blank++
			}
		}
	}
	return float64(blank) / float64(total)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
