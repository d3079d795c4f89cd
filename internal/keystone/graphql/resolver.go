package graphql

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

// Resolver holds the services behind the schema's root fields.
type Resolver struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Sessions *session.Authenticator
	Hub      *events.Hub
}

// AuthPayload is what login and refreshToken return.
type AuthPayload struct {
	Tokens session.Pair
	User   domain.User
}

func caller(ctx context.Context) (httpx.Principal, error) {
	p, ok := httpx.PrincipalFrom(ctx)
	if !ok {
		return httpx.Principal{}, errUnauthenticated
	}
	return p, nil
}

func transportOf(ctx context.Context) domain.Transport {
	if t := session.FromContext(ctx).Transport; t != "" {
		return t
	}
	return domain.TransportHeader
}

// ---- Query ----

func (r *Resolver) Me(ctx context.Context) (*domain.User, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := r.Users.GetUserByID(ctx, p, p.UserID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// User resolves to null for unknown ids.
func (r *Resolver) User(ctx context.Context, id string) (*domain.User, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := r.Users.GetUserByID(ctx, p, id)
	if errors.Is(err, service.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Resolver) UserList(ctx context.Context, limit, offset int) (*domain.UserPage, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	page, err := r.Users.ListUsers(ctx, p, limit, offset)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// ---- Mutation ----

func (r *Resolver) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	res, err := r.Auth.Login(ctx, transportOf(ctx), email, password)
	if err != nil {
		return nil, err
	}
	effectsFrom(ctx).issue(res.Tokens)
	return &AuthPayload{Tokens: res.Tokens, User: res.User}, nil
}

func (r *Resolver) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	u, err := r.Auth.Register(ctx, service.RegisterInput{Email: email, Name: name, Password: password})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	p, err := caller(ctx)
	if err != nil {
		return false, err
	}
	if err := r.Auth.Logout(ctx, transportOf(ctx), p.UserID); err != nil {
		return false, err
	}
	effectsFrom(ctx).clear()
	return true, nil
}

// RefreshToken exchanges tok, or the refresh cookie when tok is nil, for a
// new pair.
func (r *Resolver) RefreshToken(ctx context.Context, tok *string) (*AuthPayload, error) {
	fx := effectsFrom(ctx)
	raw := fx.refreshCookie
	if tok != nil {
		raw = *tok
	}

	o, err := r.Sessions.Refresh(ctx, transportOf(ctx), raw)
	if err != nil {
		return nil, err
	}
	pair := *o.Renewed
	fx.issue(pair)

	self := principalOf(o.Identity)
	u, err := r.Users.GetUserByID(ctx, self, self.UserID)
	if err != nil {
		return nil, err
	}
	return &AuthPayload{Tokens: pair, User: u}, nil
}

func (r *Resolver) UpdateUser(ctx context.Context, id string, name *string, role *domain.Role) (*domain.User, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := r.Users.UpdateUser(ctx, p, id, domain.UserUpdate{Name: name, Role: role})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Resolver) DeleteUser(ctx context.Context, id string) (bool, error) {
	p, err := caller(ctx)
	if err != nil {
		return false, err
	}
	if err := r.Users.DeleteUser(ctx, p, id); err != nil {
		return false, err
	}
	return true, nil
}

// ---- Subscription ----

// UserEvents streams account events until ctx ends. Admins see every user's
// events; other callers see only their own.
func (r *Resolver) UserEvents(ctx context.Context, types []string) (<-chan domain.Event, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if r.Hub == nil {
		return nil, errors.Join(errUnsupportedOperation, errors.New("event hub not configured"))
	}

	all := p.Role.AtLeast(domain.RoleAdmin)
	return r.Hub.Subscribe(ctx, func(ev domain.Event) bool {
		if !all && ev.UserID != p.UserID {
			return false
		}
		return len(types) == 0 || slices.Contains(types, string(ev.Type))
	}), nil
}

func principalOf(id jwtx.Identity) httpx.Principal {
	return httpx.Principal{UserID: id.Subject, Email: id.Email, Role: id.Role}
}

// ---- response effects ----

type effectsKey struct{}

// effects lets mutations set or clear the refresh cookie on the HTTP
// response. Resolvers run before gqlgen writes the body, so headers added
// here are still sent. Over WebSocket there is no response to touch.
type effects struct {
	refreshCookie string
	w             http.ResponseWriter
	cookie        transport.CookieConfig
}

func withEffects(ctx context.Context, fx *effects) context.Context {
	return context.WithValue(ctx, effectsKey{}, fx)
}

func effectsFrom(ctx context.Context) *effects {
	if fx, ok := ctx.Value(effectsKey{}).(*effects); ok {
		return fx
	}
	return &effects{}
}

func overHTTP(ctx context.Context) bool {
	return effectsFrom(ctx).w != nil
}

func (fx *effects) issue(p session.Pair) {
	if fx.w != nil {
		fx.cookie.SetRefresh(fx.w, p.Refresh)
	}
}

func (fx *effects) clear() {
	if fx.w != nil {
		fx.cookie.ClearRefresh(fx.w)
	}
}
