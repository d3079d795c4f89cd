package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
)

// CloseMalformedInit is the WebSocket close code for unreadable credentials.
const CloseMalformedInit = 4400

// RenewedTokens is the wire form of a renewed pair on every surface: REST
// bodies, GraphQL extensions and the WebSocket connection_ack payload.
type RenewedTokens struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// NewRenewedTokens projects p, or returns nil.
func NewRenewedTokens(p *session.Pair) *RenewedTokens {
	if p == nil {
		return nil
	}
	return &RenewedTokens{
		AccessToken:           p.Access.Raw,
		AccessTokenExpiresAt:  p.Access.ExpiresAt,
		RefreshToken:          p.Refresh.Raw,
		RefreshTokenExpiresAt: p.Refresh.ExpiresAt,
	}
}

// WSAdapter authenticates a WebSocket connection once, from its
// connection_init payload. The verdict holds for the life of the connection.
type WSAdapter struct {
	auth     *session.Authenticator
	activity ActivityTracker
}

// NewWSAdapter returns an adapter that authenticates through auth. activity
// may be nil.
func NewWSAdapter(auth *session.Authenticator, activity ActivityTracker) *WSAdapter {
	return &WSAdapter{auth: auth, activity: activity}
}

// Authenticate reads payload and runs the authenticator. A malformed payload
// or a persistence failure is returned as an error; the caller closes the
// connection.
func (a *WSAdapter) Authenticate(ctx context.Context, payload json.RawMessage) (session.AuthContext, error) {
	creds, err := CredentialsFromInit(payload)
	if err != nil {
		slogx.FromContext(ctx).Info("malformed credentials",
			slog.String("transport", string(domain.TransportWebSocket)), slog.Any("error", err))
		return session.AuthContext{}, err
	}

	outcome, err := a.auth.Authenticate(ctx, domain.TransportWebSocket, creds)
	if err != nil {
		return session.AuthContext{}, err
	}

	ac := session.NewAuthContext(domain.TransportWebSocket, outcome)
	if ac.Authenticated() && a.activity != nil {
		a.activity.Touch(ctx, ac.UserID())
	}
	return ac, nil
}

// AckPayload is the connection_ack payload for ac. When the init
// credentials were renewed it carries the new pair under renewedTokens.
func AckPayload(ac session.AuthContext) map[string]any {
	p := map[string]any{"authenticated": ac.Authenticated()}
	if ac.TokenRefreshed {
		p["tokenRefreshed"] = true
		p["renewedTokens"] = NewRenewedTokens(ac.Renewed)
	}
	return p
}
