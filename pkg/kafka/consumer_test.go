package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// scriptedReader serves queued messages and cancels the consumer context
// once the queue is drained.
type scriptedReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func newTestConsumer(ctx context.Context, handler MessageHandler, offsets ...int64) (*Consumer, *scriptedReader, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r := &scriptedReader{cancel: cancel}
	for _, off := range offsets {
		r.queue = append(r.queue, kafka.Message{Offset: off, Key: []byte("k"), Value: []byte("{}")})
	}
	c := &Consumer{
		reader:  r,
		logger:  slog.Default(),
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
	return c, r, ctx
}

func TestConsumerRetriesSameMessage(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, key, value []byte) error {
		calls++
		if calls < 3 {
			return errors.New("disk busy")
		}
		return nil
	}
	c, r, ctx := newTestConsumer(context.Background(), handler, 7)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
	if len(r.committed) != 1 || r.committed[0] != 7 {
		t.Errorf("committed = %v, want [7]", r.committed)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
}

func TestConsumerSkipsPermanentFailure(t *testing.T) {
	var seen []int64
	offset := int64(0)
	handler := func(ctx context.Context, key, value []byte) error {
		offset++
		seen = append(seen, offset)
		if offset == 1 {
			return resilience.Permanent(errors.New("bad event"))
		}
		return nil
	}
	c, r, ctx := newTestConsumer(context.Background(), handler, 1, 2)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("handler calls = %d, want 2", len(seen))
	}
	if len(r.committed) != 2 {
		t.Errorf("committed = %v, want both offsets", r.committed)
	}
}

func TestConsumerStopsWhenRetriesRunOut(t *testing.T) {
	handler := func(ctx context.Context, key, value []byte) error {
		return errors.New("mirror unwritable")
	}
	c, r, ctx := newTestConsumer(context.Background(), handler, 3, 4)
	err := c.Start(ctx)
	if err == nil {
		t.Fatal("Start returned nil, want error")
	}
	if len(r.committed) != 0 {
		t.Errorf("committed = %v, want none", r.committed)
	}
	if len(r.queue) != 1 {
		t.Errorf("queue = %d, want the second message untouched", len(r.queue))
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"name":"словарь"}`))
	if err != nil || got.Name != "словарь" {
		t.Errorf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`{`)); err == nil {
		t.Error("DecodeJSON accepted truncated input")
	}
}
