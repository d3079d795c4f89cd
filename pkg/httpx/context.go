package httpx

import (
	"context"

	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Principal is the authenticated caller as seen by route handlers.
type Principal struct {
	UserID string
	Email  string
	Role   jwtx.Role
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the caller attached to ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}
