package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
)

const defaultSubscriberBuffer = 32

// Hub delivers events to live subscribers. Slow subscribers lose events
// rather than stall publishers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	dropped atomic.Int64
	closed  bool
}

type subscriber struct {
	ch     chan domain.Event
	filter func(domain.Event) bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a subscriber that sees events accepted by filter (nil
// accepts all). The channel is closed when ctx ends or the hub closes.
func (h *Hub) Subscribe(ctx context.Context, filter func(domain.Event) bool) <-chan domain.Event {
	sub := &subscriber{ch: make(chan domain.Event, defaultSubscriberBuffer), filter: filter}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(id)
	}()
	return sub.ch
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Publish never blocks and never fails.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	return nil
}
