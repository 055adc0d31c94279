package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunWorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{
			name:   "no checks",
			checks: nil,
			want:   StatusUp,
		},
		{
			name: "all up",
			checks: map[string]Check{
				"a": PingCheck(func(context.Context) error { return nil }),
			},
			want: StatusUp,
		},
		{
			name: "optional failure degrades",
			checks: map[string]Check{
				"a":     PingCheck(func(context.Context) error { return nil }),
				"kafka": OptionalCheck(func(context.Context) error { return errors.New("no brokers") }),
			},
			want: StatusDegraded,
		},
		{
			name: "required failure is down",
			checks: map[string]Check{
				"redis": PingCheck(func(context.Context) error { return errors.New("refused") }),
				"kafka": OptionalCheck(func(context.Context) error { return errors.New("no brokers") }),
			},
			want: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for n, ch := range tt.checks {
				c.Register(n, ch)
			}
			if got := c.Run(context.Background()).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	if got := DirCheck(dir)(context.Background()); got.Status != StatusUp {
		t.Errorf("writable dir: %+v", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind")
	}

	if got := DirCheck(filepath.Join(dir, "missing"))(context.Background()); got.Status != StatusDown {
		t.Errorf("missing dir: %+v", got)
	}

	file := filepath.Join(dir, "file")
	os.WriteFile(file, nil, 0o644)
	if got := DirCheck(file)(context.Background()); got.Status != StatusDown {
		t.Errorf("regular file: %+v", got)
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("data_dir", DirCheck(t.TempDir()))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Components["data_dir"].Status != StatusUp {
		t.Errorf("report = %+v", report)
	}

	c.Register("kafka", OptionalCheck(func(context.Context) error { return errors.New("no brokers") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status with degraded check = %d, want 200", rec.Code)
	}

	c.Register("postgres", PingCheck(func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status with failing check = %d", rec.Code)
	}
}

func TestRunTimesOutSlowCheck(t *testing.T) {
	c := NewChecker()
	c.SetTimeout(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	c.Register("stuck", func(ctx context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("fine", PingCheck(func(context.Context) error { return nil }))

	start := time.Now()
	report := c.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run took %s", elapsed)
	}
	if report.Status != StatusDown || report.Components["stuck"].Status != StatusDown {
		t.Errorf("report = %+v", report)
	}
	if report.Components["fine"].Status != StatusUp {
		t.Errorf("fine = %+v", report.Components["fine"])
	}
}
