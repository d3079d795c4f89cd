package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const defaultActivityEvery = time.Minute

// ActivityTracker stamps last_active_at for authenticated callers, at most
// once per user per interval. Writes run in the background.
type ActivityTracker struct {
	users store.Users
	clock clockwork.Clock
	every time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	wg   sync.WaitGroup
}

func NewActivityTracker(users store.Users, clock clockwork.Clock, every time.Duration) *ActivityTracker {
	if every <= 0 {
		every = defaultActivityEvery
	}
	return &ActivityTracker{
		users: users,
		clock: clockOrReal(clock),
		every: every,
		last:  make(map[string]time.Time),
	}
}

// Touch implements transport.ActivityTracker.
func (a *ActivityTracker) Touch(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	now := a.clock.Now().UTC()

	a.mu.Lock()
	if prev, ok := a.last[userID]; ok && now.Sub(prev) < a.every {
		a.mu.Unlock()
		return
	}
	a.last[userID] = now
	if len(a.last) > 10_000 {
		a.prune(now)
	}
	a.mu.Unlock()

	l := slogx.FromContext(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.users.TouchLastActive(ctx, userID, now); err != nil {
			l.Debug("last active not recorded", slog.String("user_id", userID), slog.Any("error", err))
		}
	}()
}

// prune drops entries older than the interval. Caller holds mu.
func (a *ActivityTracker) prune(now time.Time) {
	for id, t := range a.last {
		if now.Sub(t) >= a.every {
			delete(a.last, id)
		}
	}
}

// Wait blocks until pending writes finish.
func (a *ActivityTracker) Wait() { a.wg.Wait() }
