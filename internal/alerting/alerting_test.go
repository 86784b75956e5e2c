package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/stream"
)

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeBroker struct {
	mu          sync.Mutex
	connectErr  error
	publishErr  error
	messages    []published
	disconnects int
}

func (b *fakeBroker) Connect(context.Context) error { return b.connectErr }

func (b *fakeBroker) Publish(_ context.Context, topic string, qos byte, retain bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.messages = append(b.messages, published{topic, qos, retain, payload})
	return nil
}

func (b *fakeBroker) IsConnected() bool { return b.connectErr == nil }

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	b.disconnects++
	b.mu.Unlock()
}

func mqttSettings() conf.MQTTSettings {
	return conf.MQTTSettings{Enabled: true, Broker: "tcp://localhost:1883", Topic: "firewatch/", QoS: 1, Retain: true}
}

func verifiedRecord() hotspot.Record {
	return hotspot.Record{Lat: 37.1234, Lon: -119.5678, Confidence: 91, FRP: 35.4, Date: "2024-08-01", Time: "0345"}.
		WithVerification(hotspot.VerificationResult{
			IsVerified:        true,
			ThermalConfidence: 91,
			VisualConfidence:  62.5,
			Method:            hotspot.MethodThermalAndVisual,
			Status:            hotspot.StatusVerifiedWildfire,
		})
}

func TestMQTTPublisherTopics(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{}
	pub, err := NewMQTTPublisher(t.Context(), mqttSettings(), broker, nil)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(t.Context(), NewVerifiedMessage(verifiedRecord())))
	require.NoError(t, pub.Publish(t.Context(), NewFrameMessage("clip.mp4", stream.FrameResult{Frame: 5, TotalFrames: 10, HasFire: true})))

	require.Len(t, broker.messages, 2)
	assert.Equal(t, "firewatch/verified", broker.messages[0].topic)
	assert.Equal(t, "firewatch/stream", broker.messages[1].topic)
	assert.Equal(t, byte(1), broker.messages[0].qos)
	assert.True(t, broker.messages[0].retain)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(broker.messages[0].payload, &msg))
	assert.Equal(t, TypeVerifiedWildfire, msg["type"])
	assert.NotEmpty(t, msg["id"])
	hs := msg["hotspot"].(map[string]any)
	assert.InDelta(t, 37.1234, hs["lat"], 1e-9)
	assert.Equal(t, "verified_wildfire", hs["verification"].(map[string]any)["status"])
	assert.NotContains(t, msg, "frame")

	pub.Close()
	assert.Equal(t, 1, broker.disconnects)
}

func TestMQTTPublisherConnectFailure(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{connectErr: fmt.Errorf("refused")}
	_, err := NewMQTTPublisher(t.Context(), mqttSettings(), broker, nil)
	require.Error(t, err)
}

func TestPahoBrokerRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	b := NewPahoBroker(conf.MQTTSettings{Broker: "not a url"}, nil)
	err := b.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, b.IsConnected())

	err = b.Publish(t.Context(), "x", 0, false, []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	b.Disconnect()
}

type fakeSender struct {
	mu       sync.Mutex
	messages []string
	titles   []string
	err      error
}

func (s *fakeSender) Send(message string, params *types.Params) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	if title, ok := params.Title(); ok {
		s.titles = append(s.titles, title)
	}
	return []error{s.err}
}

func TestPushPublisher(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	pub := NewPushPublisherWithSender(sender, "", nil)

	require.NoError(t, pub.Publish(t.Context(), NewVerifiedMessage(verifiedRecord())))
	require.Len(t, sender.messages, 1)
	assert.Equal(t,
		"Verified wildfire at 37.1234, -119.5678 (thermal confidence 91%, FRP 35.4 MW, visual confidence 62%, acquired 2024-08-01 0345)",
		sender.messages[0])
	assert.Equal(t, []string{"Firewatch"}, sender.titles)
}

func TestPushPublisherRateLimitsStreamAlerts(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	pub := NewPushPublisherWithSender(sender, "Fire", nil)

	for i := range 10 {
		frame := stream.FrameResult{Frame: i + 1, TotalFrames: 10, HasFire: true}
		require.NoError(t, pub.Publish(t.Context(), NewFrameMessage("clip.mp4", frame)))
	}
	assert.Len(t, sender.messages, pushBurst)
	assert.Equal(t, "Fire detected in clip.mp4 at frame 1 of 10 (0 detections)", sender.messages[0])

	// verified wildfires are never suppressed
	require.NoError(t, pub.Publish(t.Context(), NewVerifiedMessage(verifiedRecord())))
	assert.Len(t, sender.messages, pushBurst+1)
}

func TestPushPublisherFailureIsRedacted(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: fmt.Errorf("POST https://hooks.example.test/secret-token failed")}
	err := NewPushPublisherWithSender(sender, "", nil).Publish(t.Context(), NewVerifiedMessage(verifiedRecord()))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotification))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNewPushPublisherValidatesURLs(t *testing.T) {
	t.Parallel()

	_, err := NewPushPublisher(conf.PushSettings{Enabled: true}, nil)
	require.Error(t, err)

	_, err = NewPushPublisher(conf.PushSettings{Enabled: true, URLs: []string{"nosuchservice://token@host"}}, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token@host")

	pub, err := NewPushPublisher(conf.PushSettings{Enabled: true, URLs: []string{"logger://"}}, nil)
	require.NoError(t, err)
	pub.Close()
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
	closed   bool
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) Close() { p.closed = true }

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: fmt.Errorf("broker down")}
	fan := Fanout{failing, ok}

	err := fan.Publish(t.Context(), NewVerifiedMessage(verifiedRecord()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.messages, 1, "a failing channel does not starve the others")

	fan.Close()
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestPublishVerified(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	recs := []hotspot.Record{verifiedRecord(), verifiedRecord()}
	require.NoError(t, PublishVerified(t.Context(), pub, recs))
	require.Len(t, pub.messages, 2)
	assert.NotEqual(t, pub.messages[0].ID, pub.messages[1].ID)

	assert.NoError(t, PublishVerified(t.Context(), nil, recs))
}

func TestWatchPublishesFireFrames(t *testing.T) {
	t.Parallel()

	frames := []stream.FrameResult{
		{Frame: 1, TotalFrames: 3, Detections: []detector.Detection{}},
		{Frame: 2, TotalFrames: 3, Detections: []detector.Detection{{Confidence: 0.8}}, HasFire: true},
		{Frame: 3, TotalFrames: 3, Detections: []detector.Detection{}},
	}
	seq := func(yield func(stream.FrameResult, error) bool) {
		for _, f := range frames {
			if !yield(f, nil) {
				return
			}
		}
	}

	pub := &recordingPublisher{err: fmt.Errorf("ignored")}
	var got []int
	for r, err := range Watch(t.Context(), seq, pub, "clip.mp4") {
		require.NoError(t, err)
		got = append(got, r.Frame)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, TypeStreamFire, pub.messages[0].Type)
	assert.Equal(t, 2, pub.messages[0].Frame.Frame)
	assert.Equal(t, "clip.mp4", pub.messages[0].Source)
}

// gatedPublisher holds every delivery until release is closed.
type gatedPublisher struct {
	release chan struct{}

	mu       sync.Mutex
	messages []Message
}

func (p *gatedPublisher) Publish(_ context.Context, msg Message) error {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *gatedPublisher) Close() {}

func fireFrames(n int) iter.Seq2[stream.FrameResult, error] {
	return func(yield func(stream.FrameResult, error) bool) {
		for i := 1; i <= n; i++ {
			f := stream.FrameResult{Frame: i, TotalFrames: n, HasFire: true,
				Detections: []detector.Detection{{Confidence: 0.9}}}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func TestWatchDoesNotHoldFramesForDelivery(t *testing.T) {
	t.Parallel()

	pub := &gatedPublisher{release: make(chan struct{})}
	frames := make(chan int, 3)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for r, err := range Watch(t.Context(), fireFrames(3), pub, "clip.mp4") {
			assert.NoError(t, err)
			frames <- r.Frame
		}
	}()

	for want := 1; want <= 3; want++ {
		select {
		case got := <-frames:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			close(pub.release)
			t.Fatalf("frame %d waited on alert delivery", want)
		}
	}

	close(pub.release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish after delivery")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.messages, 3)
	for i, msg := range pub.messages {
		assert.Equal(t, i+1, msg.Frame.Frame, "alerts keep frame order")
	}
}

func TestWatchDeliversAfterConsumerStops(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(t.Context())
	for r := range Watch(ctx, fireFrames(5), pub, "clip.mp4") {
		if r.Frame == 2 {
			cancel()
			break
		}
	}
	require.Len(t, pub.messages, 2)
	assert.Equal(t, 2, pub.messages[1].Frame.Frame)
}

func TestFromSettingsWithNothingEnabled(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromSettings(t.Context(), &conf.Settings{}, nil))
}
