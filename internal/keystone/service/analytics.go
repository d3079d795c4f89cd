package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/metrics"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultSummaryWindow = 24 * time.Hour
	MinSummaryWindow     = time.Minute
	MaxSummaryWindow     = 90 * 24 * time.Hour

	defaultTopRoutes = 10
)

// RuntimeSource reports process gauges. *metrics.Metrics implements it.
type RuntimeSource interface {
	Runtime() (metrics.Runtime, error)
}

// LiveStats reports on live subscription fanout. *events.Hub implements it.
type LiveStats interface {
	Subscribers() int
	Dropped() int64
}

// AnalyticsService builds the dashboard summary.
type AnalyticsService struct {
	Store     store.Store
	Clock     clockwork.Clock
	Runtime   RuntimeSource
	Live      LiveStats
	Recorder  *RequestRecorder
	TopRoutes int
}

// Summary is everything the dashboard renders.
type Summary struct {
	Window   time.Duration
	Traffic  domain.TrafficSummary
	Users    int
	Runtime  metrics.Runtime
	Live     LiveSummary
	LogsLost int64
}

type LiveSummary struct {
	Subscribers   int
	DroppedEvents int64
}

// Summary aggregates the request logs of the last window together with
// account and runtime figures. Runtime failures degrade to zero gauges.
func (s *AnalyticsService) Summary(ctx context.Context, window time.Duration) (Summary, error) {
	if window < MinSummaryWindow || window > MaxSummaryWindow {
		return Summary{}, fmt.Errorf("%w: window must be between %s and %s", ErrInvalidInput, MinSummaryWindow, MaxSummaryWindow)
	}

	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	topN := s.TopRoutes
	if topN <= 0 {
		topN = defaultTopRoutes
	}

	traffic, err := s.Store.RequestLogs().SummarizeRequests(ctx, now.Add(-window), now, topN)
	if err != nil {
		return Summary{}, err
	}
	users, err := s.Store.Users().CountUsers(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Window: window, Traffic: traffic, Users: users}
	if s.Runtime != nil {
		rt, err := s.Runtime.Runtime()
		if err != nil {
			slogx.FromContext(ctx).Warn("runtime gauges unavailable", slog.Any("error", err))
		}
		sum.Runtime = rt
	}
	if s.Live != nil {
		sum.Live = LiveSummary{Subscribers: s.Live.Subscribers(), DroppedEvents: s.Live.Dropped()}
	}
	if s.Recorder != nil {
		sum.LogsLost = s.Recorder.Dropped()
	}
	return sum, nil
}

// ParseWindow accepts Go durations plus a whole-day form such as "7d".
// An empty string yields DefaultSummaryWindow.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSummaryWindow, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: bad window %q", ErrInvalidInput, s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad window %q", ErrInvalidInput, s)
	}
	return d, nil
}
