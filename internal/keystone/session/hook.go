package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/jonboulle/clockwork"
)

// CredentialStore is the slice of store.Users the session layer needs.
type CredentialStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdateAuthFingerprint(ctx context.Context, id string, fp domain.AuthFingerprint) (domain.User, error)
	ClearAuthFingerprint(ctx context.Context, id string, at time.Time) (domain.User, error)
}

// Hook writes the fingerprint of the most recently issued access token back
// to the credential store. Only the SHA-256 fingerprint is stored.
type Hook struct {
	users CredentialStore
	clock clockwork.Clock
}

// NewHook binds a Hook to users, which may be transaction scoped.
func NewHook(users CredentialStore, clock clockwork.Clock) *Hook {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hook{users: users, clock: clock}
}

// RecordIssuedAccessToken overwrites the stored fingerprint for subjectID.
// A missing subject yields store.ErrNotFound; any other failure is wrapped in
// ErrPersistence.
func (h *Hook) RecordIssuedAccessToken(ctx context.Context, subjectID, token string, expiresAt time.Time) error {
	_, err := h.users.UpdateAuthFingerprint(ctx, subjectID, domain.AuthFingerprint{
		Fingerprint: cryptox.FingerprintToken(token),
		ExpiresAt:   expiresAt,
		IssuedAt:    h.clock.Now(),
	})
	return persistErr(err)
}

// ClearIssuedAccessToken resets the fingerprint to the logged-out sentinel.
func (h *Hook) ClearIssuedAccessToken(ctx context.Context, subjectID string) error {
	_, err := h.users.ClearAuthFingerprint(ctx, subjectID, h.clock.Now())
	return persistErr(err)
}

func persistErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return store.ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}
