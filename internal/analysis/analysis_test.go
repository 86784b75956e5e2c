package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/stream"
	"github.com/firewatch-ai/firewatch/internal/verifier"
)

type staticSource []hotspot.RawRecord

func (s staticSource) FetchHotspots(context.Context) ([]hotspot.RawRecord, error) {
	return s, nil
}

type failingSource struct{ err error }

func (f failingSource) FetchHotspots(context.Context) ([]hotspot.RawRecord, error) {
	return nil, f.err
}

func raw(line int, confidence, frp string) hotspot.RawRecord {
	return hotspot.RawRecord{Line: line, Fields: map[string]string{
		hotspot.ColLatitude:   "38.5",
		hotspot.ColLongitude:  "-121.25",
		hotspot.ColConfidence: confidence,
		hotspot.ColFRP:        frp,
		hotspot.ColAcqDate:    "2024-08-01",
		hotspot.ColAcqTime:    "1200",
	}}
}

func TestVerifyWritesBatchOutput(t *testing.T) {
	t.Parallel()

	src := staticSource{raw(1, "95", "40"), raw(2, "10", "1"), raw(3, "85", "30")}
	var out bytes.Buffer
	err := verifyHotspots(t.Context(), src, hotspot.NewFilter(80, 20), verifier.New(nil, nil), nil, &out)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.InDelta(t, 0, got["count"], 0)
	assert.Len(t, got["unverified_alerts"], 2)
	assert.Equal(t, []any{}, got["alerts"])
	stats := got["verification_stats"].(map[string]any)
	assert.InDelta(t, 2, stats["total_hotspots"], 0)
	assert.True(t, strings.HasPrefix(out.String(), "{\n  "), "output is indented")
}

func TestVerifyPropagatesSourceErrors(t *testing.T) {
	t.Parallel()

	boom := fmt.Errorf("firms down")
	err := verifyHotspots(t.Context(), failingSource{boom}, hotspot.NewFilter(0, 0), verifier.New(nil, nil), nil, &bytes.Buffer{})
	require.ErrorIs(t, err, boom)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "ndjson", "NDJSON"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, "{}\n", string(f([]byte("{}"))))
	}
	f, err := ParseFormat("sse")
	require.NoError(t, err)
	assert.Equal(t, "data: {}\n\n", string(f([]byte("{}"))))

	_, err = ParseFormat("xml")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestStreamWithoutDetector(t *testing.T) {
	t.Parallel()

	c := &Components{Settings: &conf.Settings{}}
	err := Stream(t.Context(), c, "clip.mp4", 0, stream.NDJSON, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestStreamImage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ridge.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	var seen float32
	det := detector.Func(func(_ context.Context, _ []byte, minConfidence float32) ([]detector.Detection, error) {
		seen = minConfidence
		return []detector.Detection{{Class: 1, Confidence: 0.5}}, nil
	})
	settings := &conf.Settings{}
	settings.Detector.StreamThreshold = 0.3
	c := &Components{Settings: settings, Streamer: stream.New(det, nil)}

	var out bytes.Buffer
	require.NoError(t, Stream(t.Context(), c, path, 0, stream.NDJSON, &out))
	assert.Equal(t,
		"{\"frame\":0,\"total_frames\":1,\"detections\":[{\"class\":1,\"confidence\":0.5}],\"has_fire\":true,\"progress\":100}\n"+
			"{\"done\":true}\n",
		out.String())
	assert.InDelta(t, 0.3, seen, 1e-6)
}

func TestBuildWithDefaults(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Hotspots.MinConfidence = 80
	settings.Hotspots.MinFRP = 20

	c, err := Build(t.Context(), settings)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	assert.NotNil(t, c.FIRMS)
	assert.NotNil(t, c.Verifier)
	assert.NotNil(t, c.Metrics)
	assert.Nil(t, c.Detector, "no model configured")
	assert.Nil(t, c.Streamer)
	assert.Nil(t, c.Imagery)
	assert.Nil(t, c.Analyzer)
	assert.Nil(t, c.Publisher)
	assert.InDelta(t, 80, c.Filter.MinConfidence, 0)

	// hotspots, metrics
	assert.Len(t, c.APIOptions(), 2)
}

func TestBuildRejectsUnknownPolicy(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Hotspots.MalformedPolicy = "explode"
	_, err := Build(t.Context(), settings)
	require.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.WebServer.Host = "127.0.0.1"
	settings.WebServer.Port = "0"
	c, err := Build(t.Context(), settings)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, c) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
