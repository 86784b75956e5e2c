package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20
	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Verifier)
			assert.NotNil(t, m.Detector)
			assert.NotNil(t, m.Upstream)
			assert.NotNil(t, m.Alerting)
			assert.NotNil(t, m.HTTP)
		}()
	}
	wg.Wait()
}

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Verifier.RecordOutcome("verified_wildfire")
	m.Verifier.RecordOutcome("verified_wildfire")
	m.Verifier.RecordBatch(4, 50)
	m.Detector.RecordFrame(true)
	m.Upstream.RecordCache(metrics.SourceFIRMS, true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `verifier_hotspots_total{status="verified_wildfire"} 2`)
	assert.Contains(t, text, `verifier_last_verification_rate_percent 50`)
	assert.Contains(t, text, `detector_stream_frames_total{has_fire="true"} 1`)
	assert.Contains(t, text, `upstream_cache_lookups_total{result="hit",source="firms"} 1`)
	assert.True(t, strings.Contains(text, "go_goroutines"))
}

func TestRecordersImplementInterface(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	for _, r := range []metrics.Recorder{m.Verifier, m.Detector, m.Upstream, m.Alerting} {
		r.RecordOperation("op", metrics.StatusSuccess)
		r.RecordDuration("op", 0.5)
		r.RecordError("op", "network")
	}

	n, err := testutil.GatherAndCount(m.Registry(), "verifier_operations_total", "detector_errors_total", "upstream_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
