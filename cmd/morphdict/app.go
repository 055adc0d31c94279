package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/events"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/labelcache"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/lineset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/lock"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/redis"
)

// app holds the collaborators built from the configuration for one run.
type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	svc       *dictionary.Service
	audit     *audit.Store
	keys      *apikey.Validator
	publisher *events.Publisher
	db        *postgres.Client
	redis     *pkgredis.Client
	closers   []func() error
}

type appOptions struct {
	// collation overrides dictionary.collation when not empty.
	collation string
	// publish attaches the Kafka change publisher when Kafka is enabled.
	publish bool
	// apiKeys requires PostgreSQL and prepares the API key table.
	apiKeys bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	collation := cfg.Dictionary.Collation
	if opts.collation != "" {
		collation = opts.collation
	}
	cmp, err := lineset.ByName(collation)
	if err != nil {
		return nil, fmt.Errorf("collation %q: %w: %w", collation, apperrors.ErrInvalidInput, err)
	}

	var defaultEnc charset.Label
	if cfg.Dictionary.DefaultEncoding != "" {
		defaultEnc, err = charset.ParseLabel(cfg.Dictionary.DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("dictionary.defaultEncoding: %w: %w", apperrors.ErrInvalidInput, err)
		}
	}

	locker, err := a.newLocker()
	if err != nil {
		a.Close()
		return nil, err
	}

	var recorder dictionary.AuditRecorder
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, audit log disabled", "error", err)
		} else {
			a.db = db
			a.closers = append(a.closers, db.Close)
			a.audit = audit.NewStore(db)
			if err := a.audit.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
			recorder = a.audit
			slog.Debug("audit log enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	if opts.apiKeys {
		if a.db == nil {
			a.Close()
			return nil, fmt.Errorf("api keys need postgres: %w", apperrors.ErrUnavailable)
		}
		a.keys = apikey.NewValidator(a.db)
		if err := a.keys.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	var labels dictionary.LabelCache
	if cfg.Redis.LabelCacheTTL > 0 {
		client, err := a.redisClient()
		if err != nil {
			slog.Warn("redis unavailable, label cache disabled", "error", err)
		} else {
			labels = labelcache.New(client, cfg.Redis.LabelCachePrefix, cfg.Redis.LabelCacheTTL, a.metrics)
			slog.Debug("label cache enabled", "ttl", cfg.Redis.LabelCacheTTL)
		}
	}

	var publisher dictionary.ChangePublisher
	if opts.publish && cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DictionaryChanges)
		a.closers = append(a.closers, producer.Close)
		a.publisher = events.NewPublisher(producer, a.metrics)
		publisher = a.publisher
		slog.Debug("change events enabled", "topic", cfg.Kafka.Topics.DictionaryChanges)
	}

	a.svc = dictionary.NewService(dictionary.Options{
		Comparator:      cmp,
		DefaultEncoding: defaultEnc,
		FileMode:        os.FileMode(cfg.Dictionary.FileMode),
		Locker:          locker,
		Publisher:       publisher,
		Audit:           recorder,
		Labels:          labels,
		Metrics:         a.metrics,
		Tracing:         cfg.Tracing.Enabled,
	})
	return a, nil
}

func (a *app) newLocker() (dictionary.Locker, error) {
	d := a.cfg.Dictionary
	if d.LockBackend != "redis" {
		return lock.NewLocal(d.LockWait), nil
	}
	client, err := a.redisClient()
	if err != nil {
		return nil, fmt.Errorf("redis lock backend: %w: %w", apperrors.ErrUnavailable, err)
	}
	slog.Debug("redis lock backend enabled", "addr", a.cfg.Redis.Addr)
	return lock.NewRedis(client, a.cfg.Redis.KeyPrefix, d.LockTTL, d.LockWait), nil
}

// redisClient connects on first use and shares the client between the lock
// backend and the label cache.
func (a *app) redisClient() (*pkgredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := pkgredis.NewClient(a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// pushMetrics sends the run's metrics to the Pushgateway when one is set.
func (a *app) pushMetrics(ctx context.Context) {
	url := a.cfg.Metrics.PushGatewayURL
	if !a.cfg.Metrics.Enabled || url == "" {
		return
	}
	if err := metrics.Push(ctx, url, a.cfg.Metrics.JobName, a.registry); err != nil {
		slog.Warn("failed to push metrics", "error", err)
	}
}

func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("errors while closing", "error", err)
	}
}
