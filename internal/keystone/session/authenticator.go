package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// Config wires an Authenticator. Codec and Users are required.
type Config struct {
	Codec *jwtx.Codec
	Users CredentialStore
	Clock clockwork.Clock

	// RevocationCheck makes every AUTHENTICATED verdict consult the store
	// and demote bearers whose fingerprint is no longer the current one.
	RevocationCheck bool

	// OnOutcome, when set, observes every verdict. It must not block.
	OnOutcome func(t domain.Transport, o Outcome)
}

// Authenticator runs the per-request verification and renewal state machine.
type Authenticator struct {
	codec      *jwtx.Codec
	users      CredentialStore
	hook       *Hook
	clock      clockwork.Clock
	revocation bool
	onOutcome  func(domain.Transport, Outcome)
}

// NewAuthenticator validates cfg and returns an Authenticator. Codec and
// Users are required; a nil Clock means the real clock.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Codec == nil {
		return nil, errors.New("session: codec is required")
	}
	if cfg.Users == nil {
		return nil, errors.New("session: credential store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Authenticator{
		codec:      cfg.Codec,
		users:      cfg.Users,
		hook:       NewHook(cfg.Users, cfg.Clock),
		clock:      cfg.Clock,
		revocation: cfg.RevocationCheck,
		onOutcome:  cfg.OnOutcome,
	}, nil
}

// Codec exposes the token codec for flows that mint outside a request.
func (a *Authenticator) Codec() *jwtx.Codec { return a.codec }

// Hook returns the persistence hook bound to the authenticator's store.
func (a *Authenticator) Hook() *Hook { return a.hook }

// Authenticate verifies creds. Rejections become an anonymous Outcome; the
// returned error is non-nil only when a renewed token could not be persisted.
func (a *Authenticator) Authenticate(ctx context.Context, t domain.Transport, creds Credentials) (Outcome, error) {
	o, err := a.authenticate(ctx, t, creds)
	if err == nil && a.onOutcome != nil {
		a.onOutcome(t, o)
	}
	return o, err
}

func (a *Authenticator) authenticate(ctx context.Context, t domain.Transport, creds Credentials) (Outcome, error) {
	l := slogx.FromContext(ctx).With(slog.String("transport", string(t)))

	if creds.Bearer == "" {
		if creds.Refresh == "" {
			return anonymous(ReasonNoCredentials), nil
		}
		// A refresh token alone never authenticates a request.
		return anonymous(ReasonRejected), nil
	}

	id, err := a.codec.Verify(creds.Bearer, jwtx.PurposeAccess)
	switch {
	case err == nil:
		if a.revocation {
			return a.checkRevocation(ctx, l, id, creds.Bearer)
		}
		return Outcome{State: StateAuthenticated, Identity: id}, nil

	case errors.Is(err, jwtx.ErrTokenExpired):
		return a.renewExpired(ctx, l, id, creds.Refresh)

	case errors.Is(err, jwtx.ErrPurposeMismatch):
		l.Warn("bearer rejected", slog.String("kind", "purpose_mismatch"))
		return anonymous(ReasonRejected), nil

	default:
		// Claims of a forged token are never logged.
		l.Info("bearer rejected", slog.String("kind", "signature_invalid"))
		return anonymous(ReasonRejected), nil
	}
}

func (a *Authenticator) checkRevocation(ctx context.Context, l *slog.Logger, id jwtx.Identity, bearer string) (Outcome, error) {
	user, err := a.users.GetUserByID(ctx, id.Subject)
	if errors.Is(err, store.ErrNotFound) {
		l.Info("bearer rejected", slog.String("kind", "subject_gone"), slog.String("user_id", id.Subject))
		return anonymous(ReasonRevoked), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !cryptox.MatchFingerprint(bearer, user.AccessTokenFingerprint) {
		l.Info("bearer rejected", slog.String("kind", "revoked"), slog.String("user_id", id.Subject))
		return anonymous(ReasonRevoked), nil
	}
	return Outcome{State: StateAuthenticated, Identity: id}, nil
}

// renewExpired handles EXPIRED -> REFRESHED | REFRESH_REJECTED.
func (a *Authenticator) renewExpired(ctx context.Context, l *slog.Logger, expired jwtx.Identity, refresh string) (Outcome, error) {
	l = l.With(slog.String("user_id", expired.Subject))

	if refresh == "" {
		l.Debug("access token expired without refresh credential")
		return anonymous(ReasonRefreshRejected), nil
	}

	rid, err := a.codec.Verify(refresh, jwtx.PurposeRefresh)
	if err != nil {
		l.Info("refresh rejected", slog.String("kind", refreshKind(err)))
		return anonymous(ReasonRefreshRejected), nil
	}
	if rid.Subject != expired.Subject {
		l.Warn("refresh rejected", slog.String("kind", "subject_mismatch"))
		return anonymous(ReasonRefreshRejected), nil
	}

	return a.renew(ctx, l, rid.Subject)
}

// Refresh is the explicit refresh operation: it needs no bearer, only a
// valid refresh token. Rejections return ErrRefreshRejected.
func (a *Authenticator) Refresh(ctx context.Context, t domain.Transport, refresh string) (Outcome, error) {
	l := slogx.FromContext(ctx).With(slog.String("transport", string(t)))

	if refresh == "" {
		return anonymous(ReasonRefreshRejected), ErrRefreshRejected
	}
	rid, err := a.codec.Verify(refresh, jwtx.PurposeRefresh)
	if err != nil {
		l.Info("refresh rejected", slog.String("kind", refreshKind(err)))
		return anonymous(ReasonRefreshRejected), ErrRefreshRejected
	}

	o, err := a.renew(ctx, l.With(slog.String("user_id", rid.Subject)), rid.Subject)
	if err != nil {
		return o, err
	}
	if a.onOutcome != nil {
		a.onOutcome(t, o)
	}
	if !o.Authenticated() {
		return o, ErrRefreshRejected
	}
	return o, nil
}

// renew mints a new pair for subject from its current store record and
// persists the access fingerprint before returning it.
func (a *Authenticator) renew(ctx context.Context, l *slog.Logger, subject string) (Outcome, error) {
	user, err := a.users.GetUserByID(ctx, subject)
	if errors.Is(err, store.ErrNotFound) {
		l.Info("refresh rejected", slog.String("kind", "subject_gone"))
		return anonymous(ReasonRefreshRejected), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	pair, err := a.Mint(user.Identity())
	if err != nil {
		return Outcome{}, err
	}

	err = a.hook.RecordIssuedAccessToken(ctx, subject, pair.Access.Raw, pair.Access.ExpiresAt)
	if errors.Is(err, store.ErrNotFound) {
		return anonymous(ReasonRefreshRejected), nil
	}
	if err != nil {
		l.Error("renewed token not persisted", slog.Any("error", err))
		return Outcome{}, err
	}

	l.Info("access token renewed")
	return Outcome{State: StateRefreshed, Identity: pair.Access.Identity, Renewed: &pair}, nil
}

// Mint issues a new access/refresh pair for id without persisting anything.
// Callers must record the access token through a Hook before handing it out.
func (a *Authenticator) Mint(id jwtx.Identity) (Pair, error) {
	access, err := a.codec.Issue(id, jwtx.PurposeAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := a.codec.Issue(id, jwtx.PurposeRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func refreshKind(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrPurposeMismatch):
		return "purpose_mismatch"
	default:
		return "signature_invalid"
	}
}
