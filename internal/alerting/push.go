package alerting

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"golang.org/x/time/rate"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

const (
	pushTimeout  = 10 * time.Second
	pushInterval = 10 * time.Second // steady state between stream pushes
	pushBurst    = 3
)

// Sender delivers a text notification, satisfied by the shoutrrr router.
type Sender interface {
	Send(message string, params *types.Params) []error
}

// PushPublisher sends human readable notifications through shoutrrr. Stream
// alerts are rate limited since a burning video has fire in most frames;
// verified wildfires are always sent.
type PushPublisher struct {
	sender  Sender
	title   string
	limiter *rate.Limiter
	metrics *metrics.AlertingMetrics
}

// NewPushPublisher creates a shoutrrr sender for the configured service URLs.
func NewPushPublisher(settings conf.PushSettings, m *metrics.AlertingMetrics) (*PushPublisher, error) {
	if len(settings.URLs) == 0 {
		return nil, errors.Newf("push notifications need at least one service URL").
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(settings.URLs...)
	if err != nil {
		// the raw error can echo tokens embedded in service URLs
		return nil, errors.Newf("invalid push service URL: %s", redactedReason(err)).
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router.Timeout = pushTimeout
	router.SetLogger(log.New(io.Discard, "", 0))
	return NewPushPublisherWithSender(router, settings.Title, m), nil
}

// NewPushPublisherWithSender creates a publisher on an existing sender.
func NewPushPublisherWithSender(sender Sender, title string, m *metrics.AlertingMetrics) *PushPublisher {
	if title == "" {
		title = "Firewatch"
	}
	return &PushPublisher{
		sender:  sender,
		title:   title,
		limiter: rate.NewLimiter(rate.Every(pushInterval), pushBurst),
		metrics: m,
	}
}

// Publish sends msg. Stream alerts over the rate limit are dropped silently.
func (p *PushPublisher) Publish(_ context.Context, msg Message) error {
	if msg.Type == TypeStreamFire && !p.limiter.Allow() {
		GetLogger().Debug("stream push suppressed by rate limit", logger.String("source", msg.Source))
		return nil
	}

	params := types.Params{}
	params.SetTitle(p.title)

	if p.metrics != nil {
		timer := p.metrics.StartDeliveryTimer(ChannelPush)
		defer timer.ObserveDuration()
	}
	var firstErr error
	for _, err := range p.sender.Send(FormatText(msg), &params) {
		if err != nil {
			firstErr = err
			break
		}
	}
	if firstErr != nil {
		if p.metrics != nil {
			p.metrics.RecordOperation(ChannelPush, metrics.StatusError)
			p.metrics.RecordError(ChannelPush, string(errors.CategoryNotification))
		}
		return errors.Newf("push delivery failed: %s", redactedReason(firstErr)).
			Component("alerting").
			Category(errors.CategoryNotification).
			Build()
	}
	if p.metrics != nil {
		p.metrics.RecordOperation(ChannelPush, metrics.StatusSuccess)
	}
	return nil
}

// Close is a no-op; shoutrrr holds no connections between sends.
func (p *PushPublisher) Close() {}

// FormatText renders msg as a one-line notification.
func FormatText(msg Message) string {
	switch {
	case msg.Hotspot != nil:
		h := msg.Hotspot
		text := fmt.Sprintf("Verified wildfire at %.4f, %.4f (thermal confidence %.0f%%, FRP %.1f MW", h.Lat, h.Lon, h.Confidence, h.FRP)
		if h.Verification != nil {
			text += fmt.Sprintf(", visual confidence %.0f%%", h.Verification.VisualConfidence)
		}
		if h.Date != "" {
			text += ", acquired " + h.Date + " " + h.Time
		}
		return text + ")"
	case msg.Frame != nil:
		f := msg.Frame
		if f.TotalFrames > 1 {
			return fmt.Sprintf("Fire detected in %s at frame %d of %d (%d detections)", msg.Source, f.Frame, f.TotalFrames, len(f.Detections))
		}
		return fmt.Sprintf("Fire detected in %s (%d detections)", msg.Source, len(f.Detections))
	default:
		return "Fire alert"
	}
}

// redactedReason keeps the error type but never the service URL.
func redactedReason(err error) string {
	return fmt.Sprintf("%T", err)
}
