package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
)

// Follower replays change events onto a mirror directory. Each mirror file
// keeps the encoding it was created with; a missing mirror is created in the
// encoding carried by the first add event that reaches it.
type Follower struct {
	svc       *dictionary.Service
	mirrorDir string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewFollower creates a Follower writing into mirrorDir through svc. svc
// should not publish changes itself, or mirrors would feed the topic back.
func NewFollower(svc *dictionary.Service, mirrorDir string, m *metrics.Metrics) *Follower {
	return &Follower{
		svc:       svc,
		mirrorDir: mirrorDir,
		metrics:   m,
		logger:    slog.Default().With("component", "follower", "mirror_dir", mirrorDir),
	}
}

// HandleMessage returns a kafka.MessageHandler for the change topic.
// Undecodable or invalid messages are logged and skipped; failures to apply
// a valid event are returned so the offset is not committed.
func (f *Follower) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			f.logger.Error("failed to decode change event", "key", string(key), "error", err)
			f.count("invalid")
			return nil
		}
		err = f.Apply(ctx, ev)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			f.logger.Error("skipping invalid change event", "key", string(key), "error", err)
			f.count("invalid")
			return nil
		}
		return err
	}
}

// Apply replays ev onto the mirror copy of its dictionary.
func (f *Follower) Apply(ctx context.Context, ev Event) error {
	path, err := dictionary.Resolve(f.mirrorDir, ev.Dictionary)
	if err != nil {
		return err
	}

	var report *dictionary.Report
	switch ev.Type {
	case dictionary.OpAdd:
		report, err = f.svc.WithCreate(true, ev.Encoding).AddWords(ctx, path, ev.Added)
	case dictionary.OpDelete:
		report, err = f.svc.DeleteWords(ctx, path, ev.Removed)
	case dictionary.OpSort:
		report, err = f.svc.Sort(ctx, path)
	default:
		return fmt.Errorf("event type %q: %w", ev.Type, apperrors.ErrInvalidInput)
	}

	if errors.Is(err, apperrors.ErrNotFound) && ev.Type != dictionary.OpAdd {
		f.logger.Warn("mirror missing, nothing to replay", "dictionary", ev.Dictionary, "type", ev.Type)
		f.count("skipped")
		return nil
	}
	if err != nil {
		f.count("error")
		return fmt.Errorf("replaying %s on %s: %w", ev.Type, ev.Dictionary, err)
	}

	f.count("ok")
	if report.Total != ev.Total {
		f.logger.Warn("mirror diverged from source",
			"dictionary", ev.Dictionary,
			"mirror_total", report.Total,
			"source_total", ev.Total,
		)
	}
	return nil
}

func (f *Follower) count(status string) {
	if f.metrics != nil {
		f.metrics.EventsAppliedTotal.WithLabelValues(status).Inc()
	}
}
