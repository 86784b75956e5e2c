// Package firms retrieves active fire hotspots from the NASA FIRMS area API.
package firms

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/httpclient"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// Client fetches the area CSV for the configured source, box and day range.
// Responses are cached for CacheTTL since FIRMS updates a few times per hour.
type Client struct {
	settings conf.FIRMSSettings
	http     *httpclient.Client
	cache    *cache.Cache
	metrics  *metrics.UpstreamMetrics
}

// NewClient creates a FIRMS client. A nil http client gets its own.
func NewClient(settings conf.FIRMSSettings, client *httpclient.Client, m *metrics.UpstreamMetrics) *Client {
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Timeout})
	}
	ttl := settings.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{
		settings: settings,
		http:     client,
		cache:    cache.New(ttl, ttl*2),
		metrics:  m,
	}
}

// AreaURL returns the area CSV URL for the settings:
// {endpoint}/api/area/csv/{MAP_KEY}/{SOURCE}/{W},{S},{E},{N}/{DAYS}.
func AreaURL(s conf.FIRMSSettings) string {
	a := s.Area
	return fmt.Sprintf("%s/api/area/csv/%s/%s/%s,%s,%s,%s/%d",
		strings.TrimRight(s.Endpoint, "/"),
		url.PathEscape(s.MapKey),
		url.PathEscape(s.Source),
		coord(a.West), coord(a.South), coord(a.East), coord(a.North),
		s.Days)
}

func coord(v float64) string {
	return fmt.Sprintf("%g", v)
}

// FetchHotspots returns the rows of the area CSV in file order.
func (c *Client) FetchHotspots(ctx context.Context) ([]hotspot.RawRecord, error) {
	if c.settings.MapKey == "" {
		return nil, errors.Newf("firms map key is not configured").
			Component("firms").
			Category(errors.CategoryConfiguration).
			Build()
	}

	reqURL := AreaURL(c.settings)
	if cached, found := c.cache.Get(reqURL); found {
		c.recordCache(true)
		if rows, ok := cached.([]hotspot.RawRecord); ok {
			return rows, nil
		}
	}
	c.recordCache(false)

	start := time.Now()
	body, _, err := c.http.Fetch(ctx, reqURL, "firms")
	if c.metrics != nil {
		c.metrics.RecordDuration(metrics.SourceFIRMS, time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordOperation(metrics.SourceFIRMS, metrics.StatusError)
			c.metrics.RecordError(metrics.SourceFIRMS, string(errors.CategoryOf(err)))
		}
		return nil, err
	}

	rows, err := ParseCSV(bytes.NewReader(body))
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordOperation(metrics.SourceFIRMS, metrics.StatusError)
		}
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordOperation(metrics.SourceFIRMS, metrics.StatusSuccess)
	}

	c.cache.Set(reqURL, rows, cache.DefaultExpiration)
	GetLogger().Info("hotspots fetched",
		logger.String("source", c.settings.Source),
		logger.Int("rows", len(rows)),
		logger.Int("days", c.settings.Days))
	return rows, nil
}

func (c *Client) recordCache(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCache(metrics.SourceFIRMS, hit)
	}
}

// ParseCSV reads a header-driven hotspot CSV. Column order is taken from the
// header, so every FIRMS product layout is accepted. Line numbers count data
// rows from 1. An empty body yields no rows.
func ParseCSV(r io.Reader) ([]hotspot.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []hotspot.RawRecord{}, nil
	}
	if err != nil {
		return nil, parseError(err, 0)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if !hasColumns(header, hotspot.ColLatitude, hotspot.ColLongitude) {
		// FIRMS answers an invalid key or source with a plain text message and status 200.
		return nil, errors.Newf("unexpected FIRMS response: %s", strings.Join(header, ",")).
			Component("firms").
			Category(errors.CategoryUpstream).
			Build()
	}

	rows := []hotspot.RawRecord{}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError(err, line)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				fields[name] = record[i]
			}
		}
		rows = append(rows, hotspot.RawRecord{Line: line, Fields: fields})
	}
	return rows, nil
}

func hasColumns(header []string, names ...string) bool {
	for _, n := range names {
		if !slices.Contains(header, n) {
			return false
		}
	}
	return true
}

func parseError(err error, line int) error {
	return errors.New(fmt.Errorf("invalid hotspot CSV: %w", err)).
		Component("firms").
		Category(errors.CategoryFileParsing).
		Context("line", line).
		Build()
}
