package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/product"
)

const (
	mqttConnectTimeout  = 30 * time.Second
	mqttPublishTimeout  = 5 * time.Second
	mqttDisconnectQuiet = 250 // milliseconds
	mqttCleanupInterval = 60 * time.Second
)

// MQTTConfig configures the MQTT sink. TopicPrefix, Broker, and Port are
// required; the rest have sensible zero values.
type MQTTConfig struct {
	Broker               string
	Port                 int
	ClientID             string
	Username             string
	Password             string
	TopicPrefix          string
	QoS                  byte
	Retain               bool
	MessageExpiryMinutes int
}

// MQTT publishes products to an MQTT broker under
// {TopicPrefix}/{source}/{afos3}/{product_id}. When Retain is enabled it
// tracks every topic it has published a retained message to and sweeps
// away ones older than MessageExpiryMinutes, since the broker itself does
// not expire retained messages on its own for brokers that don't support
// MQTT5 message-expiry properties.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.Mutex
	connected bool
	published map[string]time.Time
	stopSweep chan struct{}
}

// NewMQTT returns an MQTT sink for the given configuration. Call Start to
// connect.
func NewMQTT(cfg MQTTConfig) *MQTT {
	return &MQTT{cfg: cfg, published: make(map[string]time.Time)}
}

// buildTopic constructs the MQTT topic for a product:
// {prefix}/{source}/{afos3}/{product_id}.
func buildTopic(prefix, source, afos3, productID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", prefix, source, afos3, productID)
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Start(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", m.cfg.Broker, m.cfg.Port)).
		SetClientID(m.cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.setConnected(false)
			log.Warn().Err(err).Msg("sinks/mqtt: connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			m.setConnected(true)
			log.Info().Msg("sinks/mqtt: connected to broker")
		})

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	m.client = mqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("sinks/mqtt: timed out connecting to broker %s:%d", m.cfg.Broker, m.cfg.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sinks/mqtt: failed to connect: %w", err)
	}

	if m.cfg.Retain {
		m.stopSweep = make(chan struct{})
		go m.sweepLoop()
	}
	return nil
}

func (m *MQTT) Stop(_ context.Context) error {
	if m.stopSweep != nil {
		close(m.stopSweep)
		m.stopSweep = nil
	}
	if m.cfg.Retain {
		m.clearAllRetained()
	}
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(mqttDisconnectQuiet)
	}
	m.setConnected(false)
	return nil
}

func (m *MQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MQTT) Publish(_ context.Context, p *product.Product) error {
	if m.client == nil || !m.IsConnected() {
		return fmt.Errorf("sinks/mqtt: not connected")
	}

	data, err := p.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("sinks/mqtt: %w", err)
	}

	topic := buildTopic(m.cfg.TopicPrefix, p.Source, p.Channel(), p.ProductID)

	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("sinks/mqtt: publish timed out for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sinks/mqtt: publish failed for topic %s: %w", topic, err)
	}

	if m.cfg.Retain {
		m.mu.Lock()
		m.published[topic] = time.Now()
		m.mu.Unlock()
	}
	return nil
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MQTT) sweepLoop() {
	ticker := time.NewTicker(mqttCleanupInterval)
	defer ticker.Stop()

	expiry := time.Duration(m.cfg.MessageExpiryMinutes) * time.Minute
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepExpired(expiry)
		}
	}
}

func (m *MQTT) sweepExpired(expiry time.Duration) {
	if !m.IsConnected() {
		return
	}

	now := time.Now()
	m.mu.Lock()
	var expired []string
	for topic, publishedAt := range m.published {
		if now.Sub(publishedAt) >= expiry {
			expired = append(expired, topic)
		}
	}
	m.mu.Unlock()

	for _, topic := range expired {
		m.clearRetained(topic)
	}
}

func (m *MQTT) clearAllRetained() {
	if !m.IsConnected() {
		return
	}
	m.mu.Lock()
	topics := make([]string, 0, len(m.published))
	for topic := range m.published {
		topics = append(topics, topic)
	}
	m.mu.Unlock()

	log.Info().Int("count", len(topics)).Msg("sinks/mqtt: clearing retained messages")
	for _, topic := range topics {
		m.clearRetained(topic)
	}
}

// clearRetained publishes an empty retained message, which MQTT brokers
// treat as a delete of the previously retained message on that topic.
func (m *MQTT) clearRetained(topic string) {
	token := m.client.Publish(topic, 0, true, []byte{})
	if !token.WaitTimeout(mqttPublishTimeout) {
		log.Warn().Str("topic", topic).Msg("sinks/mqtt: timed out clearing retained message")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("sinks/mqtt: failed to clear retained message")
		return
	}

	m.mu.Lock()
	delete(m.published, topic)
	m.mu.Unlock()
}
