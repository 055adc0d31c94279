// Package tracing provides a lightweight span-based tracing system that
// propagates trace context through Go contexts. Spans form parent-child trees
// and are logged as structured records via slog when the root span finishes.
//
// A nil *Span is valid and ignores every call, so callers can trace
// conditionally without branching.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/logger"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	root      bool
	mu        sync.Mutex
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
		root:      true,
	}
	return context.WithValue(ctx, spanKey, span), span
}

// Start continues the trace in ctx or, when there is none, begins a new one
// whose ID is the request ID carried by ctx.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	if SpanFromContext(ctx) != nil {
		return StartChildSpan(ctx, name)
	}
	traceID := logger.RequestIDFrom(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}
	return StartSpan(ctx, name, traceID)
}

// StartChildSpan creates a child span linked to the parent in ctx. Without a
// parent nothing is traced and the returned span is nil.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
	}

	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()

	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's end time and duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Finish ends the span and, for a root span, logs the whole tree.
func (s *Span) Finish() {
	if s == nil {
		return
	}
	s.End()
	if s.root {
		s.Log()
	}
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// NewTraceID returns a random 16-byte hex ID.
func NewTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "untraced"
	}
	return hex.EncodeToString(b[:])
}

// Log writes the span tree to slog.
func (s *Span) Log() {
	if s == nil {
		return
	}
	s.logRecursive(0)
}

func (s *Span) logRecursive(depth int) {
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	s.mu.Lock()
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := s.Children
	s.mu.Unlock()
	slog.Info("span", attrs...)

	for _, child := range children {
		child.logRecursive(depth + 1)
	}
}
