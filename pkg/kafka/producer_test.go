package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishEncodesEvent(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, logger: slog.Default()}

	err := p.Publish(context.Background(), Event{
		Key:     "words.txt",
		Value:   map[string]int{"total": 3},
		Headers: map[string]string{"request-id": "", "event-type": "add", "encoding": "cp1251"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "words.txt" || string(msg.Value) != `{"total":3}` {
		t.Errorf("message = %q %q", msg.Key, msg.Value)
	}
	var got []string
	for _, h := range msg.Headers {
		got = append(got, h.Key+"="+string(h.Value))
	}
	want := []string{"content-type=application/json", "encoding=cp1251", "event-type=add"}
	if len(got) != len(want) {
		t.Fatalf("headers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublishErrors(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("broker down")}, logger: slog.Default()}
	if err := p.Publish(context.Background(), Event{Key: "k", Value: 1}); err == nil {
		t.Error("Publish hid writer failure")
	}
	if err := p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)}); err == nil {
		t.Error("Publish accepted unencodable value")
	}
}
