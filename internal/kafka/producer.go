package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"ratingpart/internal/config"
	"ratingpart/internal/logger"
	"ratingpart/internal/metrics"
	"ratingpart/internal/models"
)

// Producer errors
var (
	ErrProducerClosed = errors.New("producer is closed")
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ratings to a topic with retry
type Producer struct {
	writer       messageWriter
	maxRetries   int
	retryBackoff time.Duration
	closed       atomic.Bool

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
}

// NewProducer creates a new Kafka producer with the given configuration
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // per-user ordering
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}

	return newProducer(writer, cfg.MaxRetries, cfg.RetryBackoff), nil
}

func newProducer(w messageWriter, maxRetries int, backoff time.Duration) *Producer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Producer{writer: w, maxRetries: maxRetries, retryBackoff: backoff}
}

// PublishBatch sends ratings tagged with scheme in a single write
func (p *Producer) PublishBatch(ctx context.Context, ratings []models.Rating, scheme models.Scheme) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(ratings) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(ratings))
	for _, r := range ratings {
		msg, err := EncodeMessage(r, scheme)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	if err := p.publishWithRetry(ctx, messages); err != nil {
		p.messagesFailed.Add(uint64(len(messages)))
		metrics.KafkaMessagesTotal.WithLabelValues("published", "failed").Add(float64(len(messages)))
		return err
	}

	p.messagesSent.Add(uint64(len(messages)))
	metrics.KafkaMessagesTotal.WithLabelValues("published", "success").Add(float64(len(messages)))
	return nil
}

// publishWithRetry writes messages with exponential backoff retry
func (p *Producer) publishWithRetry(ctx context.Context, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.retryBackoff

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}

		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	log.Error().
		Err(lastErr).
		Int("attempts", p.maxRetries+1).
		Int("batch_size", len(messages)).
		Msg("kafka publish failed after all retries")

	return fmt.Errorf("publish failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

// Close closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
	}
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
}
