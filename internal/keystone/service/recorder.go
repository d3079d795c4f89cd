package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/jonboulle/clockwork"
)

const (
	defaultRecorderBuffer = 1024
	defaultRecorderBatch  = 100
	defaultRecorderFlush  = 2 * time.Second
)

// RecorderOptions tunes a RequestRecorder. Zero values take defaults.
type RecorderOptions struct {
	Buffer     int
	BatchSize  int
	FlushEvery time.Duration
	Clock      clockwork.Clock

	// OnDrop is called for every entry discarded because the buffer was full.
	OnDrop func()
}

// RequestRecorder writes request logs in batches from a background worker.
// Record never blocks the request; a full buffer drops the entry.
type RequestRecorder struct {
	Store  store.Store
	Logger *slog.Logger

	opts    RecorderOptions
	entries chan domain.RequestLog
	dropped atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewRequestRecorder(st store.Store, logger *slog.Logger, opts RecorderOptions) *RequestRecorder {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultRecorderBuffer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultRecorderBatch
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = defaultRecorderFlush
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &RequestRecorder{
		Store:   st,
		Logger:  logger,
		opts:    opts,
		entries: make(chan domain.RequestLog, opts.Buffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Record queues entry, reporting false when it was dropped.
func (r *RequestRecorder) Record(entry domain.RequestLog) bool {
	select {
	case r.entries <- entry:
		return true
	default:
		r.dropped.Add(1)
		if r.opts.OnDrop != nil {
			r.opts.OnDrop()
		}
		return false
	}
}

// Dropped counts entries discarded since start.
func (r *RequestRecorder) Dropped() int64 { return r.dropped.Load() }

// Start runs the background writer. Call Stop to flush and shut it down.
func (r *RequestRecorder) Start() {
	go r.run()
	r.Logger.Info("request recorder started", "batch_size", r.opts.BatchSize, "flush_every", r.opts.FlushEvery)
}

// Stop flushes queued entries and waits for the worker to exit.
func (r *RequestRecorder) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.Logger.Info("request recorder stopped", "dropped", r.Dropped())
}

func (r *RequestRecorder) run() {
	defer close(r.doneCh)

	ticker := r.opts.Clock.NewTicker(r.opts.FlushEvery)
	defer ticker.Stop()

	batch := make([]domain.RequestLog, 0, r.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.Store.RequestLogs().InsertRequestLogs(ctx, batch); err != nil {
			r.Logger.Error("failed to write request logs", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-r.entries:
			batch = append(batch, e)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.Chan():
			flush()
		case <-r.stopCh:
			for {
				select {
				case e := <-r.entries:
					batch = append(batch, e)
					if len(batch) >= r.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
