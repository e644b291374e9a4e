package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/afroash/envmon/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts as JSON keyed by sensor id, so the alerts of
// one sensor stay on one partition
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a synchronous producer for topic
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Name implements Sink
func (k *KafkaSink) Name() string { return "kafka" }

// Send implements Sink
func (k *KafkaSink) Send(ctx context.Context, alert *models.Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(alert.SensorID),
		Value: value,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the producer
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
