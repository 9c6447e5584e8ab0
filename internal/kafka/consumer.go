package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"ratingpart/internal/config"
	"ratingpart/internal/logger"
	"ratingpart/internal/metrics"
	"ratingpart/internal/models"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds rating messages from a topic into the insert queue
type Consumer struct {
	reader   messageReader
	out      chan<- *models.Envelope
	fallback models.Scheme

	// Metrics
	consumed atomic.Uint64
	rejected atomic.Uint64
}

// NewConsumer creates a consumer group reader for cfg.Topic
func NewConsumer(cfg config.KafkaConfig, out chan<- *models.Envelope) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	fallback, err := models.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return newConsumer(reader, out, fallback), nil
}

func newConsumer(reader messageReader, out chan<- *models.Envelope, fallback models.Scheme) *Consumer {
	return &Consumer{reader: reader, out: out, fallback: fallback}
}

// Run consumes until ctx is cancelled. An offset is committed once its
// envelope is queued; undecodable messages are logged and committed so they
// are not redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer")
	log.Info().Msg("kafka consumer starting")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		envelope, err := DecodeMessage(msg, c.fallback)
		if err != nil {
			c.rejected.Add(1)
			metrics.KafkaMessagesTotal.WithLabelValues("consumed", "rejected").Inc()
			log.Warn().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("dropping invalid rating message")
		} else {
			select {
			case c.out <- envelope:
			case <-ctx.Done():
				return nil
			}
			c.consumed.Add(1)
			metrics.KafkaMessagesTotal.WithLabelValues("consumed", "accepted").Inc()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Close closes the underlying reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed: c.consumed.Load(),
		Rejected: c.rejected.Load(),
	}
}

// ConsumerStats holds consumer metrics
type ConsumerStats struct {
	Consumed uint64
	Rejected uint64
}
