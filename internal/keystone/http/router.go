package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/graphql"
	"github.com/aussiebroadwan/keystone/internal/keystone/metrics"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"

	_ "github.com/aussiebroadwan/keystone/api/keystone" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	adapter      *transport.HTTPAdapter
	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	clock        clockwork.Clock
	logger       *slog.Logger
	store        store.Store

	AuthService      *service.AuthService
	UserService      *service.UserService
	AnalyticsService *service.AnalyticsService
	BootstrapService *service.BootstrapService
	Recorder         *service.RequestRecorder // Optional: request logs are not stored without it
	Metrics          *metrics.Metrics         // Optional: /metrics is not mounted without it

	GraphQL   *graphql.Schema
	WSAdapter *transport.WSAdapter
	WSOptions graphql.WSOptions

	// Limits are the rate limit profiles; NewRouter sets the defaults.
	Limits httpx.RateLimits
}

// NewRouter returns a router with the logging and metrics middleware chain.
// Services and optional parts are set on the returned value before
// ApplyRoutes. A nil clock uses the real clock.
func NewRouter(
	adapter *transport.HTTPAdapter,
	codec *jwtx.Codec,
	buildVersion string,
	st store.Store,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Router {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Router{
		Mux:          http.NewServeMux(),
		adapter:      adapter,
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    clock.Now(),
		clock:        clock,
		store:        st,
		logger:       logger,
		Limits:       httpx.DefaultRateLimits(),
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.observe,
	}

	return r
}

// ApplyRoutes mounts every route. Call it once, after the router's fields
// are set.
func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerAnalytics()
	r.registerGraphQL()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Keystone API
//	@version		0.1.0
//	@description	Account and session service. Access tokens are short-lived HS256 JWTs; refresh tokens renew them.
//	@description
//	@description				Routes under /v1/auth, /graphql and /dashboard also accept the refresh cookie and renew an expired access token mid-request. The new access token is returned in the X-Access-Token header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/keystone
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		UserService: r.UserService,
		Sessions:    r.AuthService.Sessions,
		Cookie:      r.adapter.Cookie(),
		Clock:       r.clock,
	}
	cookie := r.adapter.WithCookie()

	// Login is limited per address and, strictly, per address and account
	// so one address cannot walk through guesses against a single email.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.Limits.Moderate),
			httpx.RateLimitByIPAndJSONField(r.Limits.Strict, "email"),
		),
	)

	// Other credential endpoints - strict rate limit by IP (brute force prevention)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/auth/password/forgot",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/auth/password/reset",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify-email",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)

	// POST /refresh - moderate rate limit; reads the body or the refresh cookie
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)

	// Session endpoints run behind the cookie adapter so they can renew.
	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(http.HandlerFunc(h.HandleSession),
			cookie,
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			cookie,
			httpx.RequireAuthenticated(),
			httpx.RateLimitByUser(r.Limits.Moderate),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}
	bearer := r.adapter.BearerOnly()

	// GET /users - admin listing, lenient rate limit by user
	r.Mux.Handle("GET /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			bearer,
			httpx.RequireRole(jwtx.RoleAdmin),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)

	// Single-user routes: the service decides between self and admin access.
	r.Mux.Handle("GET /v1/users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			bearer,
			httpx.RequireAuthenticated(),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("PATCH /v1/users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleUpdate),
			bearer,
			httpx.RequireAuthenticated(),
			httpx.RateLimitByUser(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("DELETE /v1/users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleDelete),
			bearer,
			httpx.RequireAuthenticated(),
			httpx.RateLimitByUser(r.Limits.Moderate),
		),
	)
}

func (r *Router) registerAnalytics() {
	h := &AnalyticsHandler{AnalyticsService: r.AnalyticsService}

	r.Mux.Handle("GET /v1/analytics/summary",
		httpx.Chain(http.HandlerFunc(h.HandleSummary),
			r.adapter.BearerOnly(),
			httpx.RequireRole(jwtx.RoleAdmin),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)

	// The dashboard is opened in a browser, so it authenticates by cookie.
	r.Mux.Handle("GET /dashboard",
		httpx.Chain(http.HandlerFunc(h.HandleDashboard),
			r.adapter.WithCookie(),
			httpx.RequireRole(jwtx.RoleAdmin),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)
}

func (r *Router) registerGraphQL() {
	if r.GraphQL == nil {
		return
	}

	r.Mux.Handle("POST /graphql",
		httpx.Chain(graphql.NewHTTPHandler(r.GraphQL, r.adapter.Cookie()),
			r.adapter.WithCookie(),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)

	// WebSocket upgrades authenticate inside the connection_init message.
	var obs graphql.ConnObserver
	if r.Metrics != nil {
		obs = r.Metrics
	}
	r.Mux.Handle("GET /graphql",
		httpx.Chain(graphql.NewWSHandler(r.GraphQL, r.WSAdapter, obs, r.WSOptions),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.clock, r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.clock, r.startTime, r.buildVersion, r.store, r.codec),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}

func (r *Router) registerBootstrap() {
	if r.BootstrapService == nil {
		return
	}

	// POST /bootstrap - very strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
}
