package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	applog "tvroute/internal/log"
)

// MQTTConfig configures an MQTTTransport.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string // prefix; a Topicer payload appends its own topic
	QoS            byte
	ConnectTimeout time.Duration
}

// mqttClient is the part of mqtt.Client the transport uses.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

var newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient { return mqtt.NewClient(opts) }

// MQTTTransport publishes each sent value as JSON to an MQTT broker.
// Publishing is asynchronous; Send never waits for the broker.
type MQTTTransport struct {
	cfg    MQTTConfig
	client mqttClient

	mu     sync.Mutex
	closed bool
}

// NewMQTTTransport connects to the broker. The client reconnects on its own
// after a lost connection.
func NewMQTTTransport(cfg MQTTConfig) (*MQTTTransport, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker URL is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt: topic is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		applog.Infof("MQTTTransport: Connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		applog.Warnf("MQTTTransport: Connection to %s lost: %v", cfg.Broker, err)
	})

	client := newMQTTClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connection to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connection error: %w", err)
	}
	return &MQTTTransport{cfg: cfg, client: client}, nil
}

// TopicFor returns the topic data is published on.
func (t *MQTTTransport) TopicFor(data any) string {
	if tp, ok := data.(Topicer); ok && tp.Topic() != "" {
		return strings.TrimSuffix(t.cfg.Topic, "/") + "/" + tp.Topic()
	}
	return t.cfg.Topic
}

// Send publishes data as JSON. It fails fast while disconnected.
func (t *MQTTTransport) Send(data any) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.New("mqtt transport closed")
	}
	if !t.client.IsConnected() {
		return errors.New("mqtt: not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("mqtt: encode %T: %w", data, err)
	}
	topic := t.TopicFor(data)
	token := t.client.Publish(topic, t.cfg.QoS, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			applog.Warnf("MQTTTransport: Publish to %s failed: %v", topic, err)
		}
	}()
	return nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.client.Disconnect(250)
	applog.Info("MQTTTransport: Disconnected")
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
