// Package lock provides per-dictionary write locks: an in-process keyed
// lock for a single binary and a Redis lease for several processes sharing a
// data directory.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

// Locker hands out exclusive access to a named dictionary. The returned
// release function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Local is a keyed mutex. Waiting honours both ctx and the configured wait.
type Local struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates a Local locker. A zero wait means wait until ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{
		wait:  wait,
		slots: make(map[string]*slot),
	}
}

func (l *Local) Acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[name]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[name] = s
	}
	s.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.unref(name, s)
			})
		}, nil
	case <-ctx.Done():
		l.unref(name, s)
		return nil, fmt.Errorf("%s: %w: %w", name, apperrors.ErrLocked, ctx.Err())
	}
}

func (l *Local) unref(name string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, name)
	}
}

// held reports how many names currently have a holder or waiter.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
