// Package health provides a concurrent health-check framework. Components
// register Check functions, and the Checker runs them in parallel to produce
// an aggregate Report for liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check is a function that probes a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// DefaultCheckTimeout bounds a single check when the checker has no
// explicit timeout.
const DefaultCheckTimeout = 2 * time.Second

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks  map[string]Check
	mu      sync.RWMutex
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: DefaultCheckTimeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// SetTimeout changes the per-check deadline.
func (c *Checker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.logger.Debug("health check registered", "check", name)
}

type namedResult struct {
	name   string
	result ComponentHealth
}

// Run executes all registered checks concurrently and returns an aggregated
// Report. A check that outlives the per-check timeout is reported down. The
// overall status is the worst status among all components.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	results := make(chan namedResult, len(checks))
	for name, check := range checks {
		go func() {
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			start := time.Now()
			result := runBounded(cctx, check)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			results <- namedResult{name: name, result: result}
		}()
	}
	for range checks {
		r := <-results
		report.Components[r.name] = r.result
		report.Status = worse(report.Status, r.result.Status)
		if r.result.Status != StatusUp {
			c.logger.Warn("health check failing", "check", r.name, "status", r.result.Status, "message", r.result.Message)
		}
	}
	return report
}

func runBounded(ctx context.Context, check Check) ComponentHealth {
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()
	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return ComponentHealth{Status: StatusDown, Message: "check timed out: " + ctx.Err().Error()}
	}
}

func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusDown:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// LiveHandler reports that the process is serving requests.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadyHandler runs every check. Only a down component fails readiness; a
// degraded one still answers 200 since writes keep working without it.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// PingCheck adapts a connectivity probe such as a database or Redis ping.
// A failing probe marks the component down.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// OptionalCheck is like PingCheck but reports degraded instead of down, for
// dependencies the service can run without.
func OptionalCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// DirCheck reports whether dir exists and a file can be created in it.
func DirCheck(dir string) Check {
	return func(ctx context.Context) ComponentHealth {
		info, err := os.Stat(dir)
		if err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		if !info.IsDir() {
			return ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("%s is not a directory", dir)}
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return ComponentHealth{Status: StatusDown, Message: "not writable: " + err.Error()}
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return ComponentHealth{Status: StatusUp, Message: filepath.Clean(dir)}
	}
}
