package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

const (
	connectTimeout    = 30 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // ms
)

// Broker is the MQTT connection used by the publisher.
type Broker interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// pahoBroker connects with the Eclipse Paho client.
type pahoBroker struct {
	mu       sync.Mutex
	settings conf.MQTTSettings
	clientID string
	client   mqtt.Client
	metrics  *metrics.AlertingMetrics
}

// NewPahoBroker creates a broker connection for settings. The client id is
// unique per process so several instances can share a broker.
func NewPahoBroker(settings conf.MQTTSettings, m *metrics.AlertingMetrics) Broker {
	return &pahoBroker{
		settings: settings,
		clientID: "firewatch-" + uuid.NewString()[:8],
		metrics:  m,
	}
}

func (b *pahoBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := url.Parse(b.settings.Broker)
	if err != nil || u.Host == "" {
		return errors.Newf("invalid broker URL %q", b.settings.Broker).
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(fmt.Errorf("failed to resolve broker host %s: %w", host, err)).
				Component("alerting").
				Category(errors.CategoryMQTTConnection).
				Build()
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.settings.Broker)
	opts.SetClientID(b.clientID)
	opts.SetUsername(b.settings.Username)
	opts.SetPassword(b.settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		GetLogger().Info("connected to MQTT broker", logger.String("broker", b.settings.Broker))
		if b.metrics != nil {
			b.metrics.UpdateConnectionStatus(true)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		GetLogger().Warn("connection to MQTT broker lost",
			logger.String("broker", b.settings.Broker),
			logger.Error(err))
		if b.metrics != nil {
			b.metrics.UpdateConnectionStatus(false)
		}
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		if b.metrics != nil {
			b.metrics.IncrementReconnectAttempts()
		}
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !waitToken(ctx, token, connectTimeout) {
		return errors.Newf("timed out connecting to MQTT broker").
			Component("alerting").
			Category(errors.CategoryMQTTConnection).
			Context("broker", b.settings.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("MQTT connection error: %w", err)).
			Component("alerting").
			Category(errors.CategoryMQTTConnection).
			Context("broker", b.settings.Broker).
			Build()
	}
	return nil
}

func (b *pahoBroker) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("alerting").
			Category(errors.CategoryMQTTConnection).
			Build()
	}

	token := client.Publish(topic, qos, retain, payload)
	if !waitToken(ctx, token, publishTimeout) {
		return errors.Newf("publish to %s timed out", topic).
			Component("alerting").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("alerting").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}

func (b *pahoBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil && b.client.IsConnected()
}

func (b *pahoBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(disconnectQuiesce)
		if b.metrics != nil {
			b.metrics.UpdateConnectionStatus(false)
		}
	}
}

// waitToken waits for token until timeout or ctx is done.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// MQTTPublisher publishes verified wildfires to <topic>/verified and stream
// frames with fire to <topic>/stream.
type MQTTPublisher struct {
	broker  Broker
	topic   string
	qos     byte
	retain  bool
	metrics *metrics.AlertingMetrics
}

// NewMQTTPublisher creates a publisher on broker and connects it.
func NewMQTTPublisher(ctx context.Context, settings conf.MQTTSettings, broker Broker, m *metrics.AlertingMetrics) (*MQTTPublisher, error) {
	p := &MQTTPublisher{
		broker:  broker,
		topic:   strings.TrimRight(settings.Topic, "/"),
		qos:     settings.QoS,
		retain:  settings.Retain,
		metrics: m,
	}
	if err := broker.Connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Topic returns the topic a message of msgType is published on.
func (p *MQTTPublisher) Topic(msgType string) string {
	if msgType == TypeStreamFire {
		return p.topic + "/stream"
	}
	return p.topic + "/verified"
}

// Publish sends msg as JSON.
func (p *MQTTPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	topic := p.Topic(msg.Type)
	if p.metrics != nil {
		timer := p.metrics.StartDeliveryTimer(ChannelMQTT)
		defer timer.ObserveDuration()
	}
	if err := p.broker.Publish(ctx, topic, p.qos, p.retain, payload); err != nil {
		if p.metrics != nil {
			p.metrics.RecordOperation(ChannelMQTT, metrics.StatusError)
			p.metrics.RecordError(ChannelMQTT, string(errors.CategoryOf(err)))
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordOperation(ChannelMQTT, metrics.StatusSuccess)
		p.metrics.ObserveMessageSize(len(payload))
	}
	GetLogger().Debug("alert published",
		logger.String("topic", topic),
		logger.String("id", msg.ID),
		logger.Int("bytes", len(payload)))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.broker.Disconnect()
}
