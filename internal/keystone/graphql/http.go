package graphql

import (
	"context"
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	gqltransport "github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/vektah/gqlparser/v2/ast"
)

// newServer is the gqlgen server shared by both transports. Introspection is
// left off.
func newServer(s *Schema) *handler.Server {
	srv := handler.New(s)
	srv.SetQueryCache(lru.New[*ast.QueryDocument](1000))
	srv.Use(extension.AutomaticPersistedQuery{Cache: lru.New[string](100)})
	srv.SetErrorPresenter(presentError)
	srv.SetRecoverFunc(recoverPanic)
	return srv
}

// HTTPHandler serves queries and mutations on POST /graphql. It runs behind
// the cookie adapter, so the AuthContext is already on the request.
type HTTPHandler struct {
	srv    *handler.Server
	cookie transport.CookieConfig
}

// NewHTTPHandler serves s with gqlgen's POST transport. Mutations that issue
// or revoke a refresh token set or clear the cookie described by cookie.
func NewHTTPHandler(s *Schema, cookie transport.CookieConfig) *HTTPHandler {
	srv := newServer(s)
	srv.AddTransport(gqltransport.POST{})
	srv.AroundResponses(renewedTokensExtension)
	return &HTTPHandler{srv: srv, cookie: cookie}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := withEffects(r.Context(), &effects{
		refreshCookie: h.cookie.ReadRefresh(r),
		w:             w,
		cookie:        h.cookie,
	})
	h.srv.ServeHTTP(w, r.WithContext(ctx))
}

// renewedTokensExtension reports a pair renewed by the cookie adapter in
// extensions.renewedTokens.
func renewedTokensExtension(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	resp := next(ctx)
	if resp == nil {
		return nil
	}
	if ac := session.FromContext(ctx); ac.Renewed != nil {
		if resp.Extensions == nil {
			resp.Extensions = make(map[string]any)
		}
		resp.Extensions["renewedTokens"] = transport.NewRenewedTokens(ac.Renewed)
	}
	return resp
}
