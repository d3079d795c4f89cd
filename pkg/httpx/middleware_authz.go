package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

// RequireAuthenticated rejects anonymous callers with 401 UNAUTHORIZED.
func RequireAuthenticated() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFrom(r.Context()); !ok {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole the caller must be authenticated and ranked at least min.
func RequireRole(min jwtx.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			if !p.Role.AtLeast(min) {
				WriteError(w, http.StatusForbidden, CodeForbidden, "requires role "+min.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "")
}
