package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/resilience"
)

const breakerName = "change-events"

// Sink is where encoded events go; *kafka.Producer is the real one.
type Sink interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher sends change events keyed by dictionary name, so all changes to
// one dictionary land on one partition in order. Attempts are retried with
// backoff and a circuit breaker stops trying while the broker is down.
type Publisher struct {
	sink           Sink
	retry          resilience.RetryConfig
	attemptTimeout time.Duration
	breaker        *resilience.CircuitBreaker
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewPublisher wraps sink. m may be nil.
func NewPublisher(sink Sink, m *metrics.Metrics) *Publisher {
	breakerCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
	if m != nil {
		m.CircuitState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
		breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Publisher{
		sink: sink,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
		},
		attemptTimeout: 5 * time.Second,
		breaker:        resilience.NewCircuitBreaker(breakerName, breakerCfg),
		metrics:        m,
		logger:         slog.Default().With("component", "change-publisher"),
	}
}

// Publish satisfies dictionary.ChangePublisher.
func (p *Publisher) Publish(ctx context.Context, c dictionary.Change) error {
	ev := FromChange(c)
	err := p.breaker.Execute(func() error {
		return resilience.Retry(ctx, "publish-change", p.retry, func() error {
			return resilience.WithTimeout(ctx, p.attemptTimeout, "publish-change", func(ctx context.Context) error {
				return p.sink.Publish(ctx, kafka.Event{
					Key:   ev.Dictionary,
					Value: ev,
					Headers: map[string]string{
						"event-type": string(ev.Type),
						"encoding":   ev.Encoding.String(),
						"request-id": ev.RequestID,
					},
				})
			})
		})
	})
	if p.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		p.metrics.EventsPublishedTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		return err
	}
	p.logger.Debug("change published", "dictionary", ev.Dictionary, "type", ev.Type, "total", ev.Total)
	return nil
}

// BreakerState exposes the circuit state for readiness checks.
func (p *Publisher) BreakerState() resilience.State {
	return p.breaker.GetState()
}
