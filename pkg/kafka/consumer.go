package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

const (
	defaultHandlerAttempts = 5
	maxFetchBackoff        = 30 * time.Second
)

// MessageHandler is a callback invoked for each Kafka message. Returning an
// error wrapped with resilience.Permanent skips the message; any other error
// is retried on the same message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them, one at a
// time, to a MessageHandler. An offset is committed only once the handler
// has accepted or permanently rejected its message, so a replica never moves
// past a change it failed to apply.
type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
}

// NewConsumer creates a Consumer for the given topic and handler. A new
// consumer group starts from the oldest retained message.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	attempts := cfg.HandlerAttempts
	if attempts <= 0 {
		attempts = defaultHandlerAttempts
	}
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Start enters the consume loop and returns nil once ctx is cancelled. It
// returns an error when a message still fails after every retry; the offset
// of that message stays uncommitted so a restart picks it up again.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "handler_attempts", c.retry.MaxAttempts)
	defer c.reader.Close()

	backoff := time.Second
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(2*backoff, maxFetchBackoff)
			continue
		}
		backoff = time.Second

		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		err = resilience.Retry(ctx, "handle message", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		switch {
		case err == nil:
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		case resilience.IsPermanent(err):
			c.logger.Warn("skipping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		default:
			return fmt.Errorf("message at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
