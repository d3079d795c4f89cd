// Package events fans account lifecycle events out to Kafka and to live
// in-process subscribers.
package events

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
)

// Publisher delivers one event. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }
func (Nop) Close() error                                { return nil }

// Multi publishes to each publisher in turn and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
