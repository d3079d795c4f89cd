package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	kmail "github.com/aussiebroadwan/keystone/internal/keystone/mail"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/idx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxFailedLogins = 5
	DefaultVerifyTTL       = 24 * time.Hour
	DefaultResetTTL        = time.Hour

	minPasswordLen = 8
	maxPasswordLen = 128
	maxNameLen     = 100
)

// Notifier queues outbound mail. mail.Dispatcher implements it.
type Notifier interface {
	Notify(msg kmail.Message) error
}

// AuthService owns the credential flows: login, logout, registration,
// email verification and password reset.
type AuthService struct {
	Store    store.Store
	Sessions *session.Authenticator
	Hasher   *cryptox.Hasher
	Clock    clockwork.Clock
	Events   events.Publisher
	Mailer   Notifier
	Mail     *kmail.Renderer

	MaxFailedLogins int
	VerifyTTL       time.Duration
	ResetTTL        time.Duration
}

// LoginResult is a freshly minted session for the user.
type LoginResult struct {
	User   domain.User
	Tokens session.Pair
}

// RegisterInput is the self-service sign-up payload.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

func (s *AuthService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *AuthService) maxFailed() int {
	if s.MaxFailedLogins <= 0 {
		return DefaultMaxFailedLogins
	}
	return s.MaxFailedLogins
}

// Login checks the password, mints a token pair and records the access
// fingerprint together with the login timestamp in one transaction. Nothing
// is returned unless the fingerprint was persisted.
func (s *AuthService) Login(ctx context.Context, t domain.Transport, email, password string) (LoginResult, error) {
	l := slogx.FromContext(ctx)
	email = NormalizeEmail(email)
	now := s.now()

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// Burn a hash anyway so unknown emails are not faster to reject.
		_, _ = s.Hasher.Hash(password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if user.FailedLogins >= s.maxFailed() {
		l.Info("login refused, account locked", slog.String("user_id", user.ID))
		return LoginResult{}, ErrAccountLocked
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		n, incErr := s.Store.Users().IncrementFailedLogins(ctx, user.ID, now)
		if incErr != nil {
			l.Error("failed to count failed login", slog.String("user_id", user.ID), slog.Any("error", incErr))
			return LoginResult{}, ErrInvalidCredentials
		}
		l.Info("login failed", slog.String("user_id", user.ID), slog.Int("failed_logins", n))
		if n >= s.maxFailed() {
			return LoginResult{}, ErrAccountLocked
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := s.Sessions.Mint(user.Identity())
	if err != nil {
		return LoginResult{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().RecordLoginSuccess(ctx, user.ID, now); err != nil {
			return err
		}
		return session.NewHook(tx.Users(), s.Clock).
			RecordIssuedAccessToken(ctx, user.ID, pair.Access.Raw, pair.Access.ExpiresAt)
	})
	if err != nil {
		l.Error("login not persisted", slog.String("user_id", user.ID), slog.Any("error", err))
		if errors.Is(err, session.ErrPersistence) {
			return LoginResult{}, err
		}
		return LoginResult{}, fmt.Errorf("%w: %w", session.ErrPersistence, err)
	}

	user.FailedLogins = 0
	user.LastLoginAt = &now
	user.AccessTokenFingerprint = cryptox.FingerprintToken(pair.Access.Raw)

	l.Info("login succeeded", slog.String("user_id", user.ID), slog.String("transport", string(t)))
	s.publish(ctx, domain.EventUserLogin, user, t)
	return LoginResult{User: user, Tokens: pair}, nil
}

// Logout clears the stored fingerprint so the current access token stops
// passing revocation checks.
func (s *AuthService) Logout(ctx context.Context, t domain.Transport, userID string) error {
	err := s.Sessions.Hook().ClearIssuedAccessToken(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("logout", slog.String("user_id", userID))
	s.publish(ctx, domain.EventUserLogout, domain.User{ID: userID}, t)
	return nil
}

// Register creates a USER account and mails the verification link.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	l := slogx.FromContext(ctx)

	email, err := ValidateEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return domain.User{}, err
	}
	name := strings.TrimSpace(in.Name)
	if len(name) > maxNameLen {
		return domain.User{}, fmt.Errorf("%w: name too long", ErrInvalidInput)
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.User{}, err
	}

	now := s.now()
	verifyExpires := now.Add(s.verifyTTL())
	user := domain.User{
		ID:                    idx.NewAt(now).String(),
		Email:                 email,
		Name:                  name,
		PasswordHash:          hash,
		Role:                  domain.RoleUser,
		VerificationTokenHash: cryptox.FingerprintToken(token),
		VerificationExpiresAt: &verifyExpires,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	l.Info("user registered", slog.String("user_id", user.ID))
	s.send(ctx, func(r *kmail.Renderer) (kmail.Message, error) {
		return r.Welcome(user.Email, user.Name, token, s.verifyTTL())
	})
	s.publish(ctx, domain.EventUserRegistered, user, "")
	return user, nil
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrInvalidToken
	}
	user, err := s.Store.Users().VerifyEmail(ctx, cryptox.FingerprintToken(token), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, err
	}
	s.publish(ctx, domain.EventEmailVerified, user, "")
	return user, nil
}

// ForgotPassword mails a reset link when the address belongs to a live user.
// Unknown addresses succeed silently so the endpoint cannot enumerate users.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		l.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.Store.Users().SetResetToken(ctx, user.ID, cryptox.FingerprintToken(token), now.Add(s.resetTTL()), now); err != nil {
		return err
	}

	l.Info("password reset issued", slog.String("user_id", user.ID))
	s.send(ctx, func(r *kmail.Renderer) (kmail.Message, error) {
		return r.PasswordReset(user.Email, user.Name, token, s.resetTTL())
	})
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The account
// is unlocked and every outstanding access token is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return err
	}

	user, err := s.Store.Users().ResetPassword(ctx, cryptox.FingerprintToken(token), hash, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password reset", slog.String("user_id", user.ID))
	s.send(ctx, func(r *kmail.Renderer) (kmail.Message, error) {
		return r.PasswordChanged(user.Email, user.Name)
	})
	s.publish(ctx, domain.EventPasswordReset, user, "")
	return nil
}

func (s *AuthService) verifyTTL() time.Duration {
	if s.VerifyTTL <= 0 {
		return DefaultVerifyTTL
	}
	return s.VerifyTTL
}

func (s *AuthService) resetTTL() time.Duration {
	if s.ResetTTL <= 0 {
		return DefaultResetTTL
	}
	return s.ResetTTL
}

func (s *AuthService) send(ctx context.Context, build func(*kmail.Renderer) (kmail.Message, error)) {
	if s.Mailer == nil || s.Mail == nil {
		return
	}
	l := slogx.FromContext(ctx)
	msg, err := build(s.Mail)
	if err != nil {
		l.Error("failed to render mail", slog.Any("error", err))
		return
	}
	if err := s.Mailer.Notify(msg); err != nil {
		l.Warn("mail not queued", slog.Any("error", err))
	}
}

func (s *AuthService) publish(ctx context.Context, typ domain.EventType, user domain.User, t domain.Transport) {
	publish(ctx, s.Events, s.now(), typ, user, t)
}

func publish(ctx context.Context, pub events.Publisher, at time.Time, typ domain.EventType, user domain.User, t domain.Transport) {
	if pub == nil {
		return
	}
	ev := domain.Event{
		ID:         idx.NewAt(at).String(),
		Type:       typ,
		UserID:     user.ID,
		Email:      user.Email,
		Transport:  t,
		OccurredAt: at,
	}
	if err := pub.Publish(ctx, ev); err != nil {
		slogx.FromContext(ctx).Warn("event not published", slog.String("type", string(typ)), slog.Any("error", err))
	}
}

// RenewalEvents returns a session.Config.OnOutcome observer that publishes
// token.refreshed for every renewal, transparent or explicit. Publishing runs
// off the request path.
func RenewalEvents(pub events.Publisher, clock clockwork.Clock, logger *slog.Logger) func(domain.Transport, session.Outcome) {
	clock = clockOrReal(clock)
	if logger == nil {
		logger = slog.Default()
	}
	return func(t domain.Transport, o session.Outcome) {
		if o.State != session.StateRefreshed {
			return
		}
		user := domain.User{ID: o.Identity.Subject, Email: o.Identity.Email}
		at := clock.Now().UTC()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			publish(slogx.WithContext(ctx, logger), pub, at, domain.EventTokenRefreshed, user, t)
		}()
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalises email and checks it is a bare address.
func ValidateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ValidatePassword requires 8 to 128 characters with at least one letter
// and one digit.
func ValidatePassword(pw string) error {
	if len(pw) < minPasswordLen || len(pw) > maxPasswordLen {
		return ErrWeakPassword
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeakPassword
	}
	return nil
}
