package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/client"
	"github.com/afroash/envmon/internal/config"
	"github.com/afroash/envmon/internal/models"
)

const (
	flushBatchSize = 50
	flushInterval  = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrDropped is returned when a payload could not be published or buffered
var ErrDropped = errors.New("payload dropped: buffer full")

// PublisherStats counts outbound payloads
type PublisherStats struct {
	Connected bool               `json:"connected"`
	Published int64              `json:"published"`
	Buffered  int                `json:"buffered"`
	Failed    int64              `json:"failed"`
	Buffer    client.BufferStats `json:"buffer"`
}

// Publisher sends sensor payloads to the broker, holding them in a
// ReadingBuffer while the broker is unreachable
type Publisher struct {
	cfg    config.MQTTConfig
	topic  string
	buffer *client.ReadingBuffer
	logger zerolog.Logger

	newClient clientFactory
	client    mqtt.Client
	mu        sync.Mutex

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a publisher for deviceID on cfg.PublishTopic(deviceID)
func NewPublisher(cfg config.MQTTConfig, deviceID string, buffer *client.ReadingBuffer, logger zerolog.Logger) *Publisher {
	return &Publisher{
		cfg:       cfg,
		topic:     cfg.PublishTopic(deviceID),
		buffer:    buffer,
		logger:    logger.With().Str("component", "publisher").Logger(),
		newClient: mqtt.NewClient,
	}
}

// Topic returns the concrete topic payloads are published on
func (p *Publisher) Topic() string {
	return p.topic
}

// Connect starts the broker connection. An unreachable broker is not an
// error: the client keeps retrying and payloads are buffered meanwhile.
func (p *Publisher) Connect() error {
	opts := mqttOptions(p.cfg)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info().Str("broker", p.cfg.Broker).Str("topic", p.topic).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn().Err(err).Msg("MQTT connection lost, buffering readings")
	})

	p.mu.Lock()
	p.client = p.newClient(opts)
	c := p.client
	p.mu.Unlock()

	token := c.Connect()
	if !token.WaitTimeout(connectWait(p.cfg)) {
		p.logger.Warn().Str("broker", p.cfg.Broker).Msg("MQTT broker not reachable yet, buffering readings")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnectionOpen()
}

// Send publishes payload, or buffers it when the broker is unreachable.
// Buffered payloads are flushed first so order is preserved.
func (p *Publisher) Send(payload *models.ReadingPayload) error {
	if !p.IsConnected() || !p.buffer.IsEmpty() {
		if !p.buffer.Push(payload) {
			p.failed.Add(1)
			return ErrDropped
		}
		if p.IsConnected() {
			p.Flush()
		}
		return nil
	}

	if err := p.publish(payload); err != nil {
		p.logger.Warn().Err(err).Str("sensor_id", payload.SensorID).Msg("Publish failed, buffering reading")
		if !p.buffer.Push(payload) {
			p.failed.Add(1)
			return ErrDropped
		}
	}
	return nil
}

// Flush publishes buffered payloads oldest first until the buffer is empty
// or a publish fails. It returns the number published.
func (p *Publisher) Flush() int {
	sent := 0
	for p.IsConnected() {
		batch := p.buffer.Peek(flushBatchSize)
		if len(batch) == 0 {
			break
		}
		for i, payload := range batch {
			if err := p.publish(payload); err != nil {
				p.buffer.PopBatch(i)
				p.logger.Warn().Err(err).Int("remaining", p.buffer.Size()).Msg("Flush interrupted")
				return sent + i
			}
		}
		p.buffer.PopBatch(len(batch))
		sent += len(batch)
	}
	if sent > 0 {
		p.logger.Info().Int("count", sent).Msg("Flushed buffered readings")
	}
	return sent
}

func (p *Publisher) publish(payload *models.ReadingPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c == nil {
		return errors.New("not connected")
	}

	token := c.Publish(p.topic, p.cfg.QoS, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}
	p.published.Add(1)
	return nil
}

// Run publishes payloads from readings and periodically flushes the buffer
// until ctx is cancelled or readings is closed
func (p *Publisher) Run(ctx context.Context, readings <-chan *models.ReadingPayload) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-readings:
			if !ok {
				return
			}
			if err := p.Send(payload); err != nil {
				p.logger.Error().Err(err).Str("sensor_id", payload.SensorID).Msg("Reading lost")
			}
		case <-ticker.C:
			if !p.buffer.IsEmpty() {
				p.Flush()
			}
		}
	}
}

// Stats returns the publisher counters
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Connected: p.IsConnected(),
		Published: p.published.Load(),
		Buffered:  p.buffer.Size(),
		Failed:    p.failed.Load(),
		Buffer:    p.buffer.Stats(),
	}
}

// Close makes one last flush attempt and disconnects
func (p *Publisher) Close() {
	if p.IsConnected() && !p.buffer.IsEmpty() {
		p.Flush()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
	if n := p.buffer.Size(); n > 0 {
		p.logger.Warn().Int("count", n).Msg("Unsent readings discarded on shutdown")
	}
}
