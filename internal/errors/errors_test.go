package errors

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu       sync.Mutex
	enabled  bool
	received []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return r.enabled }

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
	assert.Nil(t, ee.GetContext())
}

func TestBuildNilError(t *testing.T) {
	t.Parallel()

	ee := New(nil).Build()
	require.Error(t, ee)
	assert.Equal(t, "unknown error", ee.Error())
}

func TestBuilderContext(t *testing.T) {
	t.Parallel()

	ee := Newf("no imagery for %s", "hotspot").
		Component("verifier").
		Category(CategoryUpstream).
		Priority(PriorityHigh).
		LocationContext(37.5, -119.25).
		NetworkContext("https://tiles.example.com/wms?key=x", 10*time.Second).
		FileContext("/tmp/clip.MP4", 5*1024*1024).
		Timing("fetch_imagery", 1500*time.Millisecond).
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "verifier", ee.Component)
	assert.Equal(t, CategoryUpstream, ee.Category)
	assert.Equal(t, PriorityHigh, ee.Priority)
	assert.InDelta(t, 37.5, ctx["lat"], 1e-9)
	assert.InDelta(t, -119.25, ctx["lon"], 1e-9)
	assert.Equal(t, "https-endpoint", ctx["url_category"])
	assert.InDelta(t, 10.0, ctx["timeout_seconds"], 1e-9)
	assert.Equal(t, "mp4", ctx["file_extension"])
	assert.Equal(t, "medium", ctx["file_size_category"])
	assert.Equal(t, "fetch_imagery", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])

	// GetContext hands out a copy
	ctx["lat"] = 0.0
	assert.InDelta(t, 37.5, ee.GetContext()["lat"], 1e-9)
}

func TestPriorityNormalization(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PriorityMedium, New(NewStd("x")).Priority("urgent").Build().Priority)
	assert.Empty(t, New(NewStd("x")).Priority("").Build().Priority)
	assert.Equal(t, PriorityCritical, New(NewStd("x")).Priority(PriorityCritical).Build().Priority)
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"canceled", context.Canceled, CategoryCancellation},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"dial", fmt.Errorf("dial tcp 10.0.0.1:443: connection refused"), CategoryNetwork},
		{"invalid", fmt.Errorf("invalid threshold"), CategoryValidation},
		{"wrapped enhanced", fmt.Errorf("outer: %w", InputError(NewStd("bad jpeg"), "stream")), CategoryInput},
		{"plain", fmt.Errorf("something odd"), CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(tt.err))
		})
	}
}

func TestIsMatchesCategory(t *testing.T) {
	t.Parallel()

	base := NewStd("decoder exited")
	ee := New(base).Category(CategoryDecoder).Build()
	wrapped := fmt.Errorf("stream: %w", ee)

	assert.ErrorIs(t, wrapped, &EnhancedError{Category: CategoryDecoder})
	assert.NotErrorIs(t, wrapped, &EnhancedError{Category: CategoryInput})
	assert.ErrorIs(t, wrapped, base)
	assert.True(t, IsCategory(wrapped, CategoryDecoder))
	assert.Equal(t, CategoryDecoder, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(base))
}

func TestConvenienceConstructors(t *testing.T) {
	t.Parallel()

	up := UpstreamError(NewStd("503"), "satellite", "https://example.com")
	assert.Equal(t, CategoryUpstream, up.Category)
	assert.Equal(t, "satellite", up.Component)
	assert.Equal(t, "https-endpoint", up.GetContext()["url_category"])

	in := InputError(NewStd("not base64"), "api")
	assert.Equal(t, CategoryInput, in.Category)

	v := ValidationError("min_confidence out of range")
	assert.Equal(t, CategoryValidation, v.Category)
	assert.Equal(t, "min_confidence out of range", v.Error())
}

func TestTelemetryReporterReceivesBuiltErrors(t *testing.T) {
	reporter := &recordingReporter{enabled: true}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("boom")).Component("detector").Category(CategoryDetector).Build()

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	require.Len(t, reporter.received, 1)
	assert.Same(t, ee, reporter.received[0])
	assert.True(t, ee.IsReported())
}

func TestDisabledReporterIsSkipped(t *testing.T) {
	reporter := &recordingReporter{enabled: false}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	assert.False(t, hasActiveReporting.Load())
	ee := New(NewStd("boom")).Build()
	assert.False(t, ee.IsReported())
	assert.Empty(t, reporter.received)
}

func TestScrubMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		absent  string
		present string
	}{
		{
			name: "query string",
			in:   "Error at https://api.example.com/wms?appid=secret123&bbox=1,2,3,4",
			want: "Error at https://api.example.com/wms?[REDACTED]",
		},
		{
			name:    "firms map key in path",
			in:      "GET https://firms.modaps.eosdis.nasa.gov/api/area/csv/abcdef123/VIIRS_SNPP_NRT/1,2,3,4/1 failed",
			absent:  "abcdef123",
			present: "/api/area/csv/[REDACTED]/VIIRS_SNPP_NRT",
		},
		{
			name:    "token",
			in:      "auth failed with token=abc123 from broker",
			absent:  "abc123",
			present: "token=[REDACTED]",
		},
		{
			name:   "long hex",
			in:     "key 0123456789abcdef0123456789abcdef rejected",
			absent: "0123456789abcdef0123456789abcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scrubMessage(tt.in)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			if tt.absent != "" {
				assert.NotContains(t, got, tt.absent)
			}
			if tt.present != "" {
				assert.Contains(t, got, tt.present)
			}
		})
	}
}
