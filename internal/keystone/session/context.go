package session

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

type (
	ctxKey   struct{}
	traceKey struct{}
)

// AuthContext is the per-request authentication value handed to resolvers
// and handlers. A nil Identity means anonymous.
type AuthContext struct {
	Identity  *jwtx.Identity
	Transport domain.Transport
	Outcome   Outcome

	// Renewed is the pair the adapter must hand back to the caller.
	Renewed *Pair

	// TokenRefreshed is the explicit flag a connection-oriented transport
	// relays to its client, which has no response headers to read.
	TokenRefreshed bool
}

// NewAuthContext projects an Outcome for transport t.
func NewAuthContext(t domain.Transport, o Outcome) AuthContext {
	ac := AuthContext{Transport: t, Outcome: o}
	if o.Authenticated() {
		id := o.Identity
		ac.Identity = &id
	}
	if o.State == StateRefreshed {
		ac.Renewed = o.Renewed
		ac.TokenRefreshed = true
	}
	return ac
}

// Authenticated reports whether the context carries an identity.
func (ac AuthContext) Authenticated() bool { return ac.Identity != nil }

// UserID returns the subject, or "" when anonymous.
func (ac AuthContext) UserID() string {
	if ac.Identity == nil {
		return ""
	}
	return ac.Identity.Subject
}

// WithAuthContext attaches ac to ctx and reports it to any Trace on ctx.
func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	if tr, ok := ctx.Value(traceKey{}).(*Trace); ok {
		tr.record(ac)
	}
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext returns the AuthContext on ctx, or an anonymous one.
func FromContext(ctx context.Context) AuthContext {
	if ac, ok := ctx.Value(ctxKey{}).(AuthContext); ok {
		return ac
	}
	return AuthContext{Outcome: anonymous(ReasonNoCredentials)}
}

// Trace lets middleware running outside the adapter see the verdict the
// adapter reached further down the chain.
type Trace struct {
	mu sync.Mutex
	ac AuthContext
	ok bool
}

// WithTrace attaches a fresh Trace to ctx.
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	tr := &Trace{}
	return context.WithValue(ctx, traceKey{}, tr), tr
}

func (t *Trace) record(ac AuthContext) {
	t.mu.Lock()
	t.ac, t.ok = ac, true
	t.mu.Unlock()
}

// Get returns the recorded AuthContext, if an adapter ran.
func (t *Trace) Get() (AuthContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ac, t.ok
}
