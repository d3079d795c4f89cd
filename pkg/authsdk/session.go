package authsdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSessionClosed is returned by a Session after Logout.
var ErrSessionClosed = errors.New("authsdk: session logged out")

// Session represents an authenticated session with automatic token refresh.
// All Session methods renew the access token when it is near expiry.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time // renewal deadline: expiry minus leeway
	user         *UserResponse
	closed       bool
}

// newSession creates a new authenticated session from a token response.
func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.store(tokens)
	return s
}

// store adopts a new pair. Callers hold mu, or own s exclusively.
func (s *Session) store(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken

	exp := tokens.AccessTokenExpiresAt
	if exp.IsZero() && tokens.ExpiresIn > 0 {
		exp = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	if exp.IsZero() {
		exp = tokenExpiry(tokens.AccessToken)
	}
	s.expiresAt = s.client.renewAt(exp)

	if tokens.User != nil {
		s.user = tokens.User
	}
}

// tokenExpiry reads the exp claim without verifying the signature. The
// session only uses it to schedule renewal; the server does the verifying.
func tokenExpiry(raw string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return "", ErrSessionClosed
	}
	if s.fresh() {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if s.closed {
		return "", ErrSessionClosed
	}
	if s.fresh() {
		return s.accessToken, nil
	}
	return s.refreshLocked(ctx)
}

// fresh reports whether the access token is outside the renewal window. A
// token with unknown expiry is used until the server rejects it.
func (s *Session) fresh() bool {
	return s.expiresAt.IsZero() || time.Now().Before(s.expiresAt)
}

func (s *Session) canRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken != "" && !s.closed
}

// forceRefresh renews after the server rejected stale. If another goroutine
// already replaced stale, its token is used instead.
func (s *Session) forceRefresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	if s.accessToken != stale {
		return s.accessToken, nil
	}
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) (string, error) {
	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tokens)
	return s.accessToken, nil
}

// adoptAccessToken takes a renewed access token the server handed back in
// AccessTokenHeader.
func (s *Session) adoptAccessToken(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.accessToken = raw
	s.expiresAt = s.client.renewAt(tokenExpiry(raw))
}

// AccessToken returns the current access token without checking expiration.
// For most use cases, prefer using the Session methods which handle refresh automatically.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, for storing the session.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// User returns the account the session was issued for, when the server
// included it in the last token response.
func (s *Session) User() *UserResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}
