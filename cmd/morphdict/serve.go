package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/server/router"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/resilience"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs, common := newFlagSet("serve", stderr)
	port := fs.Int("port", 0, "listen port (default server.port)")
	dataDir := fs.String("data-dir", "", "dictionary directory (default dictionary.dataDir)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usageError("usage: morphdict serve [flags]")
	}
	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Dictionary.DataDir = *dataDir
	}

	slog.Info("starting morphdict server",
		"port", cfg.Server.Port,
		"data_dir", cfg.Dictionary.DataDir,
		"lock_backend", cfg.Dictionary.LockBackend,
		"require_api_key", cfg.Server.RequireAPIKey,
	)
	if err := os.MkdirAll(cfg.Dictionary.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w: %w", apperrors.ErrIO, err)
	}

	a, err := newApp(ctx, cfg, appOptions{publish: true, apiKeys: cfg.Server.RequireAPIKey})
	if err != nil {
		return err
	}
	defer a.Close()

	checker := health.NewChecker()
	checker.Register("data_dir", health.DirCheck(cfg.Dictionary.DataDir))
	if a.redis != nil {
		if cfg.Dictionary.LockBackend == "redis" {
			checker.Register("redis", health.PingCheck(a.redis.Ping))
		} else {
			checker.Register("redis", health.OptionalCheck(a.redis.Ping))
		}
	}
	if a.audit != nil {
		checker.Register("postgres", health.OptionalCheck(a.audit.Ping))
	}
	if a.publisher != nil {
		checker.Register("kafka", health.OptionalCheck(func(context.Context) error {
			if state := a.publisher.BreakerState(); state == resilience.StateOpen {
				return fmt.Errorf("change events circuit %s", state)
			}
			return nil
		}))
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer limiter.Stop()
	}

	createEnc := charset.UTF8
	if cfg.Dictionary.DefaultEncoding != "" {
		createEnc, _ = charset.ParseLabel(cfg.Dictionary.DefaultEncoding)
	}
	var history handler.HistoryStore
	if a.audit != nil {
		history = a.audit
	}
	h := handler.New(a.svc, history, handler.Config{
		DataDir:        cfg.Dictionary.DataDir,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CreateEncoding: createEnc,
	})
	var keys middleware.KeyValidator
	if a.keys != nil {
		keys = a.keys
	}
	routes := router.New(h, router.Options{
		Keys:           keys,
		Checker:        checker,
		Metrics:        a.metrics,
		Limiter:        limiter,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, a.registry)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(sctx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
