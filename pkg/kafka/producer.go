// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON with optional
// string headers; the consumer hands each message to a MessageHandler and
// commits it only once the handler is done with it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/config"
	"github.com/segmentio/kafka-go"
)

// ContentTypeHeader is set on every produced message.
const ContentTypeHeader = "content-type"

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised. Headers with empty values are
// dropped.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message", "key", event.Key, "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("message published",
		"key", event.Key,
		"value_size", len(msg.Value),
		"headers", len(msg.Headers),
	)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value: %w", err)
	}
	headers := []kafka.Header{{Key: ContentTypeHeader, Value: []byte("application/json")}}
	keys := make([]string, 0, len(event.Headers))
	for k, v := range event.Headers {
		if v != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(event.Headers[k])})
	}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: headers,
	}, nil
}
