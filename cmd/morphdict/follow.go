package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
)

// runFollow consumes change events and replays them onto the mirror
// directory until ctx is cancelled.
func runFollow(ctx context.Context, args []string, stderr io.Writer) error {
	fs, common := newFlagSet("follow", stderr)
	mirrorDir := fs.String("mirror-dir", "", "directory to replay onto (default follower.mirrorDir)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usageError("usage: morphdict follow [flags]")
	}
	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if *mirrorDir != "" {
		cfg.Follower.MirrorDir = *mirrorDir
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("follow needs kafka.enabled: %w", apperrors.ErrUnavailable)
	}
	if err := os.MkdirAll(cfg.Follower.MirrorDir, 0o755); err != nil {
		return fmt.Errorf("creating mirror dir: %w: %w", apperrors.ErrIO, err)
	}

	// The follower never republishes what it replays.
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, a.registry)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(sctx)
		}()
	}

	follower := events.NewFollower(a.svc, cfg.Follower.MirrorDir, a.metrics)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DictionaryChanges, follower.HandleMessage())

	slog.Info("following dictionary changes",
		"topic", cfg.Kafka.Topics.DictionaryChanges,
		"group", cfg.Kafka.ConsumerGroup,
		"mirror_dir", cfg.Follower.MirrorDir,
	)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	slog.Info("follower stopped")
	return nil
}
