package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

// Store is the subset of pkg/redis.Client the lease needs.
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	ExpireIfEquals(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Redis is a lease-based lock. Each holder writes a random token under the
// key and only the holder of that token can extend or delete it, so a lease
// that expired and was taken over is never released by the old holder.
type Redis struct {
	store  Store
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *slog.Logger
}

// NewRedis creates a Redis locker. Leases last ttl and are renewed at a
// third of it while held; Acquire gives up after wait.
func NewRedis(store Store, prefix string, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		poll:   50 * time.Millisecond,
		logger: slog.Default().With("component", "redis-lock"),
	}
}

func (r *Redis) Acquire(ctx context.Context, name string) (func(), error) {
	key := r.prefix + name
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generating lock token: %w", err)
	}

	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	for {
		ok, err := r.store.SetNX(ctx, key, token, r.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w: %w", name, apperrors.ErrLocked, ctx.Err())
			}
			return nil, fmt.Errorf("acquiring %s: %w: %w", key, apperrors.ErrUnavailable, err)
		}
		if ok {
			return r.hold(key, token), nil
		}
		select {
		case <-time.After(r.poll):
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w: %w", name, apperrors.ErrLocked, ctx.Err())
		}
	}
}

// hold renews the lease until the returned release function runs.
func (r *Redis) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
				ok, err := r.store.ExpireIfEquals(ctx, key, token, r.ttl)
				cancel()
				if err != nil {
					r.logger.Warn("lease renewal failed", "key", key, "error", err)
				} else if !ok {
					r.logger.Error("lease lost while held", "key", key)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := r.store.DeleteIfEquals(ctx, key, token); err != nil {
				r.logger.Warn("lease release failed, it will expire on its own", "key", key, "error", err)
			}
		})
	}
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
