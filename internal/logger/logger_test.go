package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Trace("trace")
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "ERROR", lines[2]["level"])
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	NewSlogLogger(buf, LogLevelTrace, time.UTC).Trace("deep")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "TRACE", lines[0]["level"])
}

func TestModuleAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).
		Module("verifier").
		Module("thermal").
		With(String("source", "firms"))

	log.Info("hotspot verified",
		Float64("lat", 37.123456),
		Int("workers", 4),
		Bool("is_verified", true),
		Duration("elapsed", 1500*time.Millisecond),
		Error(nil))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, "verifier.thermal", l["module"])
	assert.Equal(t, "firms", l["source"])
	assert.InDelta(t, 37.123, l["lat"], 1e-9)
	assert.InDelta(t, 4, l["workers"], 1e-9)
	assert.Equal(t, true, l["is_verified"])
	assert.Equal(t, "1.5s", l["elapsed"])
	assert.Contains(t, l, "error")
	assert.Nil(t, l["error"])
}

func TestWithDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	parent := NewSlogLogger(buf, LogLevelInfo, time.UTC).Module("stream")
	_ = parent.With(String("frame", "7"))
	parent.Info("plain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "frame")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(context.Background(), "req-42")).Info("with trace")
	log.WithContext(context.Background()).Info("without trace")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-42", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestSensitiveValuesAreRedacted(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Info("fetching",
		String("map_key", "abcdef0123456789"),
		String("url", "https://firms.modaps.eosdis.nasa.gov/api/area/csv/abcdef0123456789/VIIRS_SNPP_NRT/world/1"))

	out := buf.String()
	assert.NotContains(t, out, "abcdef0123456789")
	assert.Contains(t, out, "/api/area/csv/[REDACTED]/VIIRS_SNPP_NRT")
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	assert.Empty(t, RedactSensitiveData(""))
	assert.Equal(t, "Bearer [REDACTED]", RedactSensitiveData("Bearer abc.def.ghi"))
	assert.Equal(t, "password=[REDACTED]", RedactSensitiveData("password=hunter22"))
	assert.Equal(t, "no secrets here", RedactSensitiveData("no secrets here"))
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	t.Parallel()

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		ModuleLevels: map[string]string{"stream": "debug"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.mu.RLock()
	defer cl.mu.RUnlock()
	assert.Equal(t, parseLogLevel("debug"), cl.moduleLevelLocked("stream"))
	assert.Equal(t, parseLogLevel("debug"), cl.moduleLevelLocked("stream.decoder"))
	assert.Equal(t, parseLogLevel("warn"), cl.moduleLevelLocked("verifier"))
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "firewatch.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "info"},
	})
	require.NoError(t, err)

	cl.Module("api").Info("request served", Int("status", 200))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "api", line["module"])
	assert.Equal(t, "request served", line["msg"])
	_, err = time.Parse(time.RFC3339, line["time"].(string))
	assert.NoError(t, err)
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}
