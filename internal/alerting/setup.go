package alerting

import (
	"context"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// FromSettings builds a Fanout of the enabled publishers. It returns nil when
// no channel is enabled. A channel that fails to start is logged and left out
// so alerting problems never block verification or detection.
func FromSettings(ctx context.Context, settings *conf.Settings, m *metrics.AlertingMetrics) Publisher {
	var fan Fanout

	if settings.MQTT.Enabled {
		pub, err := NewMQTTPublisher(ctx, settings.MQTT, NewPahoBroker(settings.MQTT, m), m)
		if err != nil {
			GetLogger().Error("MQTT alerting disabled", logger.Error(err))
		} else {
			fan = append(fan, pub)
		}
	}
	if settings.Push.Enabled {
		pub, err := NewPushPublisher(settings.Push, m)
		if err != nil {
			GetLogger().Error("push alerting disabled", logger.Error(err))
		} else {
			fan = append(fan, pub)
		}
	}

	if len(fan) == 0 {
		return nil
	}
	GetLogger().Info("alerting enabled", logger.Int("channels", len(fan)))
	return fan
}
