package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
)

// ActivityTracker is told about authenticated callers. Implementations must
// not block the request.
type ActivityTracker interface {
	Touch(ctx context.Context, userID string)
}

// HTTPAdapter authenticates HTTP requests. Header mode reads only the bearer
// header, so an expired bearer can never be renewed. Cookie mode also reads
// the refresh cookie and, on renewal, rotates the cookie and exposes the new
// access token through the X-Access-Token header and AuthContext.Renewed.
type HTTPAdapter struct {
	auth     *session.Authenticator
	cookie   CookieConfig
	activity ActivityTracker
}

// NewHTTPAdapter authenticates through auth and reports each authenticated
// user to activity, which may be nil.
func NewHTTPAdapter(auth *session.Authenticator, cookie CookieConfig, activity ActivityTracker) *HTTPAdapter {
	return &HTTPAdapter{auth: auth, cookie: cookie.withDefaults(), activity: activity}
}

// Cookie returns the refresh cookie settings.
func (a *HTTPAdapter) Cookie() CookieConfig { return a.cookie }

// BearerOnly is the stateless header adapter.
func (a *HTTPAdapter) BearerOnly() httpx.Middleware {
	return a.middleware(domain.TransportHeader)
}

// WithCookie is the stateful adapter used by routes that may set cookies.
func (a *HTTPAdapter) WithCookie() httpx.Middleware {
	return a.middleware(domain.TransportCookie)
}

func (a *HTTPAdapter) middleware(t domain.Transport) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			bearer, err := BearerFromHeader(r.Header)
			if err != nil {
				slogx.FromContext(ctx).Info("malformed credentials", slog.String("transport", string(t)), slog.Any("error", err))
				httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed Authorization header")
				return
			}

			creds := session.Credentials{Bearer: bearer}
			if t == domain.TransportCookie {
				creds.Refresh = a.cookie.ReadRefresh(r)
			}

			outcome, err := a.auth.Authenticate(ctx, t, creds)
			if err != nil {
				slogx.FromContext(ctx).Error("authentication failed", slog.String("transport", string(t)), slog.Any("error", err))
				if errors.Is(err, session.ErrPersistence) {
					httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeInternal, "could not persist session")
					return
				}
				httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "")
				return
			}

			ac := session.NewAuthContext(t, outcome)
			if ac.Renewed != nil {
				a.cookie.SetRefresh(w, ac.Renewed.Refresh)
				w.Header().Set(AccessTokenHeader, ac.Renewed.Access.Raw)
			}

			r = r.WithContext(Attach(ctx, ac))
			if ac.Authenticated() && a.activity != nil {
				a.activity.Touch(r.Context(), ac.UserID())
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Attach puts ac, the matching httpx.Principal and a user-scoped logger on ctx.
func Attach(ctx context.Context, ac session.AuthContext) context.Context {
	ctx = session.WithAuthContext(ctx, ac)
	if !ac.Authenticated() {
		return ctx
	}
	ctx = httpx.WithPrincipal(ctx, httpx.Principal{
		UserID: ac.Identity.Subject,
		Email:  ac.Identity.Email,
		Role:   ac.Identity.Role,
	})
	return slogx.With(ctx, "user_id", ac.Identity.Subject)
}
