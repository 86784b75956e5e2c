package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/satellite"
)

// fakeImagery answers by latitude: tiles listed in available carry data,
// lats in failing return an upstream error, everything else has no imagery.
type fakeImagery struct {
	available map[float64][]byte
	failing   map[float64]bool
	calls     atomic.Int32
}

func (f *fakeImagery) FetchImagery(_ context.Context, lat, _, _ float64) (satellite.Imagery, error) {
	f.calls.Add(1)
	if f.failing[lat] {
		return satellite.Imagery{}, errors.UpstreamError(fmt.Errorf("gateway timeout"), "satellite", "https://gibs.example.test/wms")
	}
	if data, ok := f.available[lat]; ok {
		return satellite.Imagery{Data: data, ContentType: "image/jpeg"}, nil
	}
	return satellite.Imagery{Reason: satellite.ReasonNoContent}, nil
}

// tileDetector answers by image payload.
func tileDetector(answers map[string][]detector.Detection, failures map[string]error) detector.Func {
	return func(_ context.Context, image []byte, _ float32) ([]detector.Detection, error) {
		if err, ok := failures[string(image)]; ok {
			return nil, err
		}
		return answers[string(image)], nil
	}
}

func rec(lat, confidence, frp float64) hotspot.Record {
	return hotspot.Record{Lat: lat, Lon: -120, Confidence: confidence, FRP: frp, Date: "2024-08-01", Time: "0345"}
}

func TestVerifyThermalOnlyWhenNoImagery(t *testing.T) {
	t.Parallel()

	v := New(&fakeImagery{}, tileDetector(nil, nil))

	// strong thermal signal is verified but still routed to unverified
	got := v.Verify(t.Context(), rec(1, 90, 30))
	require.NotNil(t, got.Verification)
	assert.True(t, got.Verification.IsVerified)
	assert.InDelta(t, 90.0, got.Verification.ThermalConfidence, 1e-9)
	assert.Zero(t, got.Verification.VisualConfidence)
	assert.Equal(t, hotspot.MethodThermalOnly, got.Verification.Method)
	assert.Equal(t, hotspot.StatusUnverifiedNoImagery, got.Verification.Status)

	weak := v.Verify(t.Context(), rec(1, 79, 30))
	assert.False(t, weak.Verification.IsVerified)
	lowFRP := v.Verify(t.Context(), rec(1, 95, 19.9))
	assert.False(t, lowFRP.Verification.IsVerified)
	edge := v.Verify(t.Context(), rec(1, 80, 20))
	assert.True(t, edge.Verification.IsVerified)
}

func TestVerifyUpstreamFailureFallsBackToThermal(t *testing.T) {
	t.Parallel()

	v := New(&fakeImagery{failing: map[float64]bool{1: true}}, tileDetector(nil, nil))
	got := v.Verify(t.Context(), rec(1, 90, 30))
	assert.True(t, got.Verification.IsVerified)
	assert.Equal(t, hotspot.StatusUnverifiedNoImagery, got.Verification.Status)
	assert.Empty(t, got.Verification.Error)
}

func TestVerifyVisualConfirmation(t *testing.T) {
	t.Parallel()

	imagery := &fakeImagery{available: map[float64][]byte{1: []byte("fire"), 2: []byte("clear")}}
	det := tileDetector(map[string][]detector.Detection{
		"fire": {{Class: 0, Confidence: 0.6}},
	}, nil)
	v := New(imagery, det)

	fire := v.Verify(t.Context(), rec(1, 55, 6))
	assert.True(t, fire.Verification.IsVerified)
	assert.InDelta(t, 60.0, fire.Verification.VisualConfidence, 1e-4)
	assert.Equal(t, hotspot.MethodThermalAndVisual, fire.Verification.Method)
	assert.Equal(t, hotspot.StatusVerifiedWildfire, fire.Verification.Status)

	rejected := v.Verify(t.Context(), rec(2, 99, 500))
	assert.False(t, rejected.Verification.IsVerified)
	assert.Zero(t, rejected.Verification.VisualConfidence)
	assert.Equal(t, hotspot.MethodVisualRejected, rejected.Verification.Method)
	assert.Equal(t, hotspot.StatusFalseAlarmRejected, rejected.Verification.Status)
}

func TestVerifyMeanOfSeveralDetections(t *testing.T) {
	t.Parallel()

	imagery := &fakeImagery{available: map[float64][]byte{1: []byte("fire")}}
	det := tileDetector(map[string][]detector.Detection{
		"fire": {{Confidence: 0.5}, {Confidence: 0.75}, {Confidence: 1}},
	}, nil)
	got := New(imagery, det).Verify(t.Context(), rec(1, 60, 10))
	assert.InDelta(t, 75.0, got.Verification.VisualConfidence, 1e-4)
}

func TestVerifyDetectorFailure(t *testing.T) {
	t.Parallel()

	imagery := &fakeImagery{available: map[float64][]byte{1: []byte("tile")}}
	det := tileDetector(nil, map[string]error{"tile": fmt.Errorf("tensor shape mismatch")})
	got := New(imagery, det).Verify(t.Context(), rec(1, 90, 30))

	assert.True(t, got.Verification.IsVerified)
	assert.Equal(t, hotspot.MethodThermalOnly, got.Verification.Method)
	assert.Equal(t, hotspot.StatusUnverifiedDetectorError, got.Verification.Status)
	assert.Contains(t, got.Verification.Error, "tensor shape mismatch")
	assert.Zero(t, got.Verification.VisualConfidence)
}

func TestVerifyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := rec(1, 90, 30)
	out := New(&fakeImagery{}, tileDetector(nil, nil)).Verify(t.Context(), in)
	assert.Nil(t, in.Verification)
	assert.NotNil(t, out.Verification)
}

func TestVerifyPassesDetectorConfidence(t *testing.T) {
	t.Parallel()

	var seen float32
	det := detector.Func(func(_ context.Context, _ []byte, minConfidence float32) ([]detector.Detection, error) {
		seen = minConfidence
		return nil, nil
	})
	imagery := &fakeImagery{available: map[float64][]byte{1: []byte("tile")}}

	New(imagery, det).Verify(t.Context(), rec(1, 90, 30))
	assert.InDelta(t, float32(conf.DefaultDetectorConfidence), seen, 1e-6)

	th := DefaultThresholds()
	th.DetectorConfidence = 0.35
	New(imagery, det, WithThresholds(th)).Verify(t.Context(), rec(1, 90, 30))
	assert.InDelta(t, float32(0.35), seen, 1e-6)
}

func TestVerifyAllPartitionsInOrder(t *testing.T) {
	t.Parallel()

	imagery := &fakeImagery{
		available: map[float64][]byte{},
		failing:   map[float64]bool{},
	}
	answers := map[string][]detector.Detection{}
	failures := map[string]error{}

	var input []hotspot.Record
	for i := range 60 {
		lat := float64(i)
		tile := fmt.Sprintf("tile-%d", i)
		switch i % 5 {
		case 0: // no imagery
		case 1:
			imagery.available[lat] = []byte(tile)
			answers[tile] = []detector.Detection{{Confidence: 0.9}}
		case 2:
			imagery.available[lat] = []byte(tile)
		case 3:
			imagery.failing[lat] = true
		case 4:
			imagery.available[lat] = []byte(tile)
			failures[tile] = fmt.Errorf("boom")
		}
		input = append(input, rec(lat, 60+float64(i%40), 10))
	}

	v := New(imagery, tileDetector(answers, failures), WithWorkers(8))
	batch, err := v.VerifyAll(t.Context(), input)
	require.NoError(t, err)

	assert.Len(t, batch.Verified, 12)
	assert.Len(t, batch.FalseAlarms, 12)
	assert.Len(t, batch.Unverified, 36)

	// every input appears exactly once, each set keeps input order
	seen := map[float64]int{}
	for _, set := range [][]hotspot.Record{batch.Verified, batch.FalseAlarms, batch.Unverified} {
		prev := -1.0
		for _, r := range set {
			seen[r.Lat]++
			assert.Greater(t, r.Lat, prev)
			prev = r.Lat
			require.NotNil(t, r.Verification)
		}
	}
	assert.Len(t, seen, len(input))
	for lat, n := range seen {
		assert.Equal(t, 1, n, "lat %v", lat)
	}

	assert.Equal(t, Stats{
		TotalHotspots:    60,
		VerifiedCount:    12,
		FalseAlarmCount:  12,
		UnverifiedCount:  36,
		VerificationRate: 20,
	}, batch.Stats)
	assert.Equal(t, int32(60), imagery.calls.Load())
}

func TestVerifyAllEmpty(t *testing.T) {
	t.Parallel()

	batch, err := New(&fakeImagery{}, tileDetector(nil, nil)).VerifyAll(t.Context(), nil)
	require.NoError(t, err)
	assert.Zero(t, batch.Stats.TotalHotspots)
	assert.Zero(t, batch.Stats.VerificationRate)

	raw, err := json.Marshal(batch.Output())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"count": 0,
		"alerts": [],
		"unverified_alerts": [],
		"false_alarms": [],
		"verification_stats": {
			"total_hotspots": 0,
			"verified_fires": 0,
			"false_alarms_rejected": 0,
			"unverified": 0,
			"verification_rate": 0
		},
		"false_alarms_rejected": 0,
		"unverified_count": 0
	}`, string(raw))
}

func TestVerifyAllSerializesUnsafeDetector(t *testing.T) {
	t.Parallel()

	det := &unsafeDetector{}
	imagery := &fakeImagery{available: map[float64][]byte{}}
	var input []hotspot.Record
	for i := range 20 {
		imagery.available[float64(i)] = []byte("tile")
		input = append(input, rec(float64(i), 90, 30))
	}

	batch, err := New(imagery, det, WithWorkers(10)).VerifyAll(t.Context(), input)
	require.NoError(t, err)
	assert.Len(t, batch.Verified, 20)
	assert.Equal(t, int32(1), det.maxInFlight.Load())
}

type unsafeDetector struct {
	mu          sync.Mutex
	inFlight    int32
	maxInFlight atomic.Int32
}

func (d *unsafeDetector) Detect(context.Context, []byte, float32) ([]detector.Detection, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight.Load() {
		d.maxInFlight.Store(d.inFlight)
	}
	d.mu.Unlock()

	time.Sleep(time.Millisecond)

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
	return []detector.Detection{{Confidence: 0.8}}, nil
}

func (d *unsafeDetector) ConcurrencySafe() bool { return false }

func TestVerifyAllCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := New(&fakeImagery{}, tileDetector(nil, nil)).VerifyAll(ctx, []hotspot.Record{rec(1, 90, 30)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestOutputShape(t *testing.T) {
	t.Parallel()

	imagery := &fakeImagery{available: map[float64][]byte{1: []byte("fire")}}
	det := tileDetector(map[string][]detector.Detection{"fire": {{Confidence: 0.5}}}, nil)
	batch, err := New(imagery, det).VerifyAll(t.Context(), []hotspot.Record{rec(1, 70, 10), rec(2, 90, 30)})
	require.NoError(t, err)

	out := batch.Output()
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, 0, out.FalseAlarmsRejected)
	assert.Equal(t, 1, out.UnverifiedCount)
	assert.InDelta(t, 50.0, out.VerificationStats.VerificationRate, 1e-9)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"count", "alerts", "unverified_alerts", "false_alarms", "verification_stats", "false_alarms_rejected", "unverified_count"} {
		assert.Contains(t, decoded, key)
	}
	alert := decoded["alerts"].([]any)[0].(map[string]any)
	verification := alert["verification"].(map[string]any)
	assert.Equal(t, "thermal_and_visual", verification["verification_method"])
	assert.Equal(t, "verified_wildfire", verification["status"])
}

func TestNewFromSettings(t *testing.T) {
	t.Parallel()

	v := NewFromSettings(conf.VerifierSettings{
		ThermalConfidence:  50,
		ThermalFRP:         1,
		DetectorConfidence: 0.3,
		RadiusKm:           5,
		Workers:            0,
	}, &fakeImagery{}, tileDetector(nil, nil))
	assert.Equal(t, 1, v.workers)
	assert.InDelta(t, 5.0, v.thresholds.RadiusKm, 1e-9)
	assert.True(t, v.Verify(t.Context(), rec(1, 55, 2)).Verification.IsVerified)
}
