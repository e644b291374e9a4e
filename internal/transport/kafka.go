package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/afroash/envmon/internal/config"
)

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer feeds messages from the readings topic to a Handler,
// committing each offset after it has been handled
type KafkaConsumer struct {
	reader  messageReader
	handler Handler
	logger  zerolog.Logger
	backoff time.Duration

	received atomic.Int64
	failed   atomic.Int64
}

// NewKafkaConsumer creates a consumer group reader on cfg.ReadingsTopic
func NewKafkaConsumer(cfg config.KafkaSettings, handler Handler, logger zerolog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.ReadingsTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are explicit
		StartOffset:    kafka.LastOffset,
	})
	return newKafkaConsumer(reader, handler, logger)
}

func newKafkaConsumer(reader messageReader, handler Handler, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger.With().Str("component", "kafka").Logger(),
		backoff: time.Second,
	}
}

// Run consumes until ctx is cancelled. Messages are handled one at a time;
// a message that fails processing is still committed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("Kafka consumer started")
	defer c.logger.Info().Msg("Kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error().Err(err).Msg("Failed to fetch message")
			if !sleepCtx(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.received.Add(1)
		if err := c.handler(msg.Value); err != nil {
			c.failed.Add(1)
			c.logger.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Failed to process sensor message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// offsets are cumulative, the next commit covers this one
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit offset")
		}
	}
}

// Close closes the underlying reader
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// Stats returns the consumer counters
func (c *KafkaConsumer) Stats() Stats {
	return Stats{
		Connected: true,
		Received:  c.received.Load(),
		Failed:    c.failed.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
