package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var transitions []string
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Second,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
		now: clock.Now,
	})
	fail := errors.New("down")

	for range 2 {
		if err := cb.Execute(func() error { return fail }); !errors.Is(err, fail) {
			t.Fatalf("Execute = %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open circuit: err = %v", err)
	}
	if called {
		t.Error("fn called while open")
	}

	clock.Advance(time.Second)
	if err := cb.Execute(func() error { return fail }); !errors.Is(err, fail) {
		t.Fatalf("probe = %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("failed probe left state %s", cb.GetState())
	}

	clock.Advance(time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.GetState())
	}

	want := []string{"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerHalfOpenAllowsOneProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, now: clock.Now})
	cb.Execute(func() error { return errors.New("down") })
	clock.Advance(time.Second)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error { <-release; return nil })
	}()
	// Wait for the probe to be admitted.
	for cb.GetState() != StateHalfOpen {
		time.Sleep(time.Millisecond)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second request during probe: err = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("probe: %v", err)
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	fail := errors.New("flaky")

	tests := []struct {
		name      string
		cfg       RetryConfig
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", cfg: cfg, wantCalls: 1},
		{name: "after failures", cfg: cfg, failures: 3, err: fail, wantCalls: 4},
		{name: "exhausted", cfg: cfg, failures: 10, err: fail, wantCalls: 4, wantErr: true},
		{name: "permanent", cfg: cfg, failures: 10, err: Permanent(fail), wantCalls: 1, wantErr: true},
		{name: "not retryable", cfg: RetryConfig{
			MaxAttempts:  4,
			InitialDelay: time.Millisecond,
			Retryable:    func(err error) bool { return false },
		}, failures: 10, err: fail, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), "test", tt.cfg, func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if err != nil && !errors.Is(err, fail) {
				t.Errorf("err = %v does not wrap cause", err)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "test", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestComputeDelayBounded(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.1}
	for attempt := 1; attempt <= 10; attempt++ {
		d := computeDelay(attempt, cfg)
		if d <= 0 || d > cfg.MaxDelay {
			t.Errorf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	want := errors.New("fast failure")
	if err := WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v", err)
	}
}
