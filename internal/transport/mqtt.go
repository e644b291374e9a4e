// Package transport moves sensor payloads between devices and the ingestion
// pipeline over MQTT or Kafka.
package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/config"
)

// Handler processes one raw inbound message
type Handler func(payload []byte) error

// Stats counts inbound messages
type Stats struct {
	Connected bool  `json:"connected"`
	Received  int64 `json:"received"`
	Failed    int64 `json:"failed"`
}

// clientFactory builds the paho client; tests swap it for a fake
type clientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTTSubscriber feeds messages from the sensor topic to a Handler
type MQTTSubscriber struct {
	cfg     config.MQTTConfig
	handler Handler
	logger  zerolog.Logger

	newClient clientFactory
	client    mqtt.Client
	mu        sync.Mutex

	received atomic.Int64
	failed   atomic.Int64
}

// NewMQTTSubscriber creates a subscriber for cfg.Topic
func NewMQTTSubscriber(cfg config.MQTTConfig, handler Handler, logger zerolog.Logger) *MQTTSubscriber {
	return &MQTTSubscriber{
		cfg:       cfg,
		handler:   handler,
		logger:    logger.With().Str("component", "mqtt").Logger(),
		newClient: mqtt.NewClient,
	}
}

func (s *MQTTSubscriber) clientOptions() *mqtt.ClientOptions {
	opts := mqttOptions(s.cfg)
	// a clean session would drop the subscription on reconnect, so
	// subscribe again every time the connection comes up
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.logger.Info().Msg("Reconnecting to MQTT broker")
	})
	return opts
}

// mqttOptions holds the connection settings shared by subscriber and publisher
func mqttOptions(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Second)
	if cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	opts.SetOrderMatters(true)
	opts.SetCleanSession(true)
	return opts
}

// Start connects to the broker. When the broker does not answer within the
// connect timeout the client keeps retrying in the background and Start
// returns nil.
func (s *MQTTSubscriber) Start() error {
	s.mu.Lock()
	s.client = s.newClient(s.clientOptions())
	client := s.client
	s.mu.Unlock()

	s.logger.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("Connecting to MQTT broker")

	token := client.Connect()
	if !token.WaitTimeout(connectWait(s.cfg)) {
		s.logger.Warn().Str("broker", s.cfg.Broker).Msg("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func connectWait(cfg config.MQTTConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return 10 * time.Second
}

func (s *MQTTSubscriber) onConnect(client mqtt.Client) {
	s.logger.Info().Str("broker", s.cfg.Broker).Msg("Connected to MQTT broker")

	token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	if !token.WaitTimeout(connectWait(s.cfg)) {
		s.logger.Error().Str("topic", s.cfg.Topic).Msg("Timed out subscribing to sensor topic")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Str("topic", s.cfg.Topic).Msg("Failed to subscribe to sensor topic")
		return
	}
	s.logger.Info().Str("topic", s.cfg.Topic).Uint8("qos", s.cfg.QoS).Msg("Subscribed to sensor topic")
}

func (s *MQTTSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.Handle(msg.Topic(), msg.Payload())
}

// Handle passes one message to the handler. Errors are logged; the broker
// connection is never affected by a bad message.
func (s *MQTTSubscriber) Handle(topic string, payload []byte) {
	s.received.Add(1)
	if err := s.handler(payload); err != nil {
		s.failed.Add(1)
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to process sensor message")
	}
}

// Stop disconnects, giving in-flight work up to 250ms
func (s *MQTTSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return
	}
	s.client.Disconnect(250)
	s.client = nil
	s.logger.Info().Msg("MQTT subscriber stopped")
}

// Stats returns the subscriber counters
func (s *MQTTSubscriber) Stats() Stats {
	s.mu.Lock()
	connected := s.client != nil && s.client.IsConnected()
	s.mu.Unlock()
	return Stats{
		Connected: connected,
		Received:  s.received.Load(),
		Failed:    s.failed.Load(),
	}
}
