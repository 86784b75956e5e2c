// Package alerting delivers verified wildfires and detection stream frames
// with fire to MQTT subscribers and push notification services.
package alerting

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/hotspot"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/stream"
)

// Message types.
const (
	TypeVerifiedWildfire = "verified_wildfire"
	TypeStreamFire       = "stream_fire"
)

// Channel names used in metrics.
const (
	ChannelMQTT = "mqtt"
	ChannelPush = "push"
)

// Message is one alert on the wire.
type Message struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Hotspot     *hotspot.Record     `json:"hotspot,omitempty"`
	Frame       *stream.FrameResult `json:"frame,omitempty"`
	Source      string              `json:"source,omitempty"` // media name for stream alerts
	PublishedAt time.Time           `json:"published_at"`
}

// NewVerifiedMessage wraps a verified hotspot.
func NewVerifiedMessage(rec hotspot.Record) Message {
	return Message{
		ID:          uuid.NewString(),
		Type:        TypeVerifiedWildfire,
		Hotspot:     &rec,
		PublishedAt: time.Now().UTC(),
	}
}

// NewFrameMessage wraps a stream frame with fire.
func NewFrameMessage(source string, frame stream.FrameResult) Message {
	return Message{
		ID:          uuid.NewString(),
		Type:        TypeStreamFire,
		Frame:       &frame,
		Source:      source,
		PublishedAt: time.Now().UTC(),
	}
}

// Publisher delivers alert messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close()
}

// PublishVerified publishes one message per verified wildfire. Delivery
// failures are collected and returned together; every record is attempted.
func PublishVerified(ctx context.Context, pub Publisher, verified []hotspot.Record) error {
	if pub == nil {
		return nil
	}
	var errs []error
	for _, rec := range verified {
		if err := pub.Publish(ctx, NewVerifiedMessage(rec)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// watchQueue bounds the stream alerts waiting for delivery.
const watchQueue = 32

// Watch passes seq through unchanged and publishes every frame with fire.
// Frames reach the consumer without waiting on delivery: alerts are handed
// to a background worker, which the sequence drains before it returns.
// Delivery failures are logged and never interrupt the stream.
func Watch(ctx context.Context, seq iter.Seq2[stream.FrameResult, error], pub Publisher, source string) iter.Seq2[stream.FrameResult, error] {
	if pub == nil {
		return seq
	}
	return func(yield func(stream.FrameResult, error) bool) {
		queue := make(chan Message, watchQueue)
		done := make(chan struct{})
		// an alert already detected is delivered even if the consumer hangs up
		deliverCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(done)
			for msg := range queue {
				if err := pub.Publish(deliverCtx, msg); err != nil {
					GetLogger().Warn("failed to publish stream alert",
						logger.String("source", source),
						logger.Int("frame", msg.Frame.Frame),
						logger.Error(err))
				}
			}
		}()
		defer func() {
			close(queue)
			<-done
		}()

		for result, err := range seq {
			if err == nil && result.HasFire {
				queue <- NewFrameMessage(source, result)
			}
			if !yield(result, err) {
				return
			}
		}
	}
}

// Fanout publishes to every configured publisher.
type Fanout []Publisher

// Publish delivers msg to all publishers and joins their errors.
func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all publishers.
func (f Fanout) Close() {
	for _, p := range f {
		p.Close()
	}
}
