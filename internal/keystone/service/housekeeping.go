package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/jonboulle/clockwork"
)

const DefaultLogRetention = 30 * 24 * time.Hour

// HousekeepingService periodically clears lapsed reset, verification and
// access token state, and purges request logs past retention.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Clock     clockwork.Clock

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = DefaultLogRetention
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		Clock:     clockwork.NewRealClock(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.Chan():
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupReport counts what one pass touched.
type CleanupReport struct {
	TokensCleared int64
	LogsPurged    int64
}

// Cleanup runs one pass. Each step is independent; a failure in one is
// logged and does not stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) CleanupReport {
	var rep CleanupReport
	now := s.Clock.Now().UTC()
	s.Logger.Debug("starting housekeeping cleanup")

	n, err := s.Store.Users().ClearExpiredTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired tokens", "error", err)
	} else {
		rep.TokensCleared = n
	}

	n, err = s.Store.RequestLogs().PurgeRequestLogs(ctx, now.Add(-s.Retention))
	if err != nil {
		s.Logger.Error("failed to purge request logs", "error", err)
	} else {
		rep.LogsPurged = n
	}

	s.Logger.Info("housekeeping cleanup completed",
		"tokens_cleared", rep.TokensCleared,
		"logs_purged", rep.LogsPurged,
	)
	return rep
}
