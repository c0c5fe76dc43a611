package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/pothole.report/internal/monitoring"
)

// DefaultTopic is where events are published unless configured.
const DefaultTopic = "pothole/events"

// ErrNotConnected is returned when publishing while the broker link is down.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ClientID == "" {
		c.ClientID = "pothole-report"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	return c
}

// brokerClient is the subset of mqtt.Client the publisher uses.
type brokerClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes event messages to an MQTT broker. The paho client
// reconnects on its own after the first successful connect.
type MQTTPublisher struct {
	config MQTTConfig

	mu     sync.Mutex
	client brokerClient
}

// NewMQTTPublisher connects to cfg.Broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		monitoring.Logf("connected to MQTT broker %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("connection to MQTT broker %s lost: %v", cfg.Broker, err)
	})

	p := newMQTTPublisher(cfg, mqtt.NewClient(opts))
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func newMQTTPublisher(cfg MQTTConfig, client brokerClient) *MQTTPublisher {
	return &MQTTPublisher{config: cfg.withDefaults(), client: client}
}

func (p *MQTTPublisher) connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.config.ConnectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection error: %w", err)
	}
	return nil
}

// Topic returns the publish topic.
func (p *MQTTPublisher) Topic() string { return p.config.Topic }

// Publish sends m to the configured topic.
func (p *MQTTPublisher) Publish(ctx context.Context, m Message) error {
	payload, err := m.Payload()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(p.config.Topic, p.config.QoS, p.config.Retain, payload)
	timer := time.NewTimer(p.config.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish timeout on %s", p.config.Topic)
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
