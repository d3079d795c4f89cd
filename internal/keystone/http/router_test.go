package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestLoginSetsRefreshCookie(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@example.com", domain.RoleUser)

	resp := h.do(t, req{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   authsdk.LoginRequest{Email: "alice@example.com", Password: testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tok := decode[authsdk.TokenResponse](t, resp)
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, 900, tok.ExpiresIn)
	require.NotNil(t, tok.User)
	require.Equal(t, "alice@example.com", tok.User.Email)

	ck := h.refreshCookie(resp)
	require.NotNil(t, ck)
	require.Equal(t, tok.RefreshToken, ck.Value)
	require.True(t, ck.HttpOnly)

	t.Run("wrong password", func(t *testing.T) {
		resp := h.do(t, req{
			method: http.MethodPost,
			path:   "/v1/auth/login",
			body:   authsdk.LoginRequest{Email: "alice@example.com", Password: "nope-nope1"},
		})
		requireAPIError(t, resp, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	})

	t.Run("malformed body", func(t *testing.T) {
		hr, err := http.NewRequestWithContext(t.Context(), http.MethodPost, h.srv.URL+"/v1/auth/login", bytes.NewBufferString("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(hr)
		require.NoError(t, err)
		defer resp.Body.Close()
		requireAPIError(t, resp, http.StatusBadRequest, authsdk.ErrorCodeBadRequest)
	})
}

func TestSessionRenewsExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	alice := h.seed(t, "alice@example.com", domain.RoleUser)
	tok := h.login(t, alice.Email)

	t.Run("fresh token is authenticated", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/auth/session", bearer: tok.AccessToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		s := decode[authsdk.SessionResponse](t, resp)
		require.True(t, s.Authenticated)
		require.Equal(t, string(session.StateAuthenticated), s.State)
		require.False(t, s.TokenRefreshed)
		require.Nil(t, s.Renewed)
		require.Equal(t, alice.ID, s.User.ID)
		require.Empty(t, resp.Header.Get(transport.AccessTokenHeader))
	})

	h.clock.Advance(16 * time.Minute)

	t.Run("expired token without cookie is anonymous", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/auth/session", bearer: tok.AccessToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		s := decode[authsdk.SessionResponse](t, resp)
		require.False(t, s.Authenticated)
		require.Equal(t, string(session.ReasonRefreshRejected), s.Reason)
		require.Nil(t, s.User)
	})

	t.Run("expired token with cookie is renewed", func(t *testing.T) {
		resp := h.do(t, req{
			method:  http.MethodGet,
			path:    "/v1/auth/session",
			bearer:  tok.AccessToken,
			refresh: tok.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		s := decode[authsdk.SessionResponse](t, resp)
		require.True(t, s.Authenticated)
		require.True(t, s.TokenRefreshed)
		require.Equal(t, string(session.StateRefreshed), s.State)
		require.Equal(t, string(domain.TransportCookie), s.Transport)
		require.NotNil(t, s.Renewed)

		renewed := resp.Header.Get(transport.AccessTokenHeader)
		require.NotEmpty(t, renewed)
		require.Equal(t, s.Renewed.AccessToken, renewed)
		require.NotEqual(t, tok.AccessToken, renewed)

		ck := h.refreshCookie(resp)
		require.NotNil(t, ck)
		require.Equal(t, s.Renewed.RefreshToken, ck.Value)

		// The renewed token authenticates on its own.
		resp = h.do(t, req{method: http.MethodGet, path: "/v1/users/" + alice.ID, bearer: renewed})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("bearer routes never renew", func(t *testing.T) {
		resp := h.do(t, req{
			method:  http.MethodGet,
			path:    "/v1/users/" + alice.ID,
			bearer:  tok.AccessToken,
			refresh: tok.RefreshToken,
		})
		requireAPIError(t, resp, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)
		require.Empty(t, resp.Header.Get(transport.AccessTokenHeader))
		require.Nil(t, h.refreshCookie(resp))
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		resp := h.do(t, req{
			method: http.MethodGet,
			path:   "/v1/auth/session",
			header: map[string]string{"Authorization": "Basic abc"},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestExplicitRefresh(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@example.com", domain.RoleUser)
	tok := h.login(t, "alice@example.com")

	tests := []struct {
		name    string
		body    any
		refresh string
		status  int
	}{
		{name: "token in body", body: authsdk.RefreshRequest{RefreshToken: tok.RefreshToken}, status: http.StatusOK},
		{name: "token in cookie", refresh: tok.RefreshToken, status: http.StatusOK},
		{name: "access token as refresh", body: authsdk.RefreshRequest{RefreshToken: tok.AccessToken}, status: http.StatusUnauthorized},
		{name: "nothing", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, req{method: http.MethodPost, path: "/v1/auth/refresh", body: tt.body, refresh: tt.refresh})
			if tt.status != http.StatusOK {
				requireAPIError(t, resp, tt.status, authsdk.ErrorCodeInvalidToken)
				return
			}
			require.Equal(t, http.StatusOK, resp.StatusCode)
			out := decode[authsdk.TokenResponse](t, resp)
			require.NotEmpty(t, out.AccessToken)
			require.Equal(t, "alice@example.com", out.User.Email)
			require.NotNil(t, h.refreshCookie(resp))
		})
	}

	t.Run("rejected cookie is cleared", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodPost, path: "/v1/auth/refresh", refresh: "garbage"})
		requireAPIError(t, resp, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
		ck := h.refreshCookie(resp)
		require.NotNil(t, ck)
		require.Empty(t, ck.Value)
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@example.com", domain.RoleUser)
	tok := h.login(t, "alice@example.com")

	resp := h.do(t, req{method: http.MethodPost, path: "/v1/auth/logout"})
	requireAPIError(t, resp, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)

	resp = h.do(t, req{method: http.MethodPost, path: "/v1/auth/logout", bearer: tok.AccessToken, refresh: tok.RefreshToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	ck := h.refreshCookie(resp)
	require.NotNil(t, ck)
	require.Empty(t, ck.Value)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "taken@example.com", domain.RoleUser)

	tests := []struct {
		name   string
		body   authsdk.RegisterRequest
		status int
		code   string
	}{
		{
			name:   "created",
			body:   authsdk.RegisterRequest{Email: "New@Example.com", Name: "New", Password: "longenough1"},
			status: http.StatusCreated,
		},
		{
			name:   "bad email",
			body:   authsdk.RegisterRequest{Email: "nope", Password: "longenough1"},
			status: http.StatusBadRequest,
			code:   authsdk.ErrorCodeValidationFailed,
		},
		{
			name:   "short password",
			body:   authsdk.RegisterRequest{Email: "x@example.com", Password: "short"},
			status: http.StatusBadRequest,
			code:   authsdk.ErrorCodeValidationFailed,
		},
		{
			name:   "taken",
			body:   authsdk.RegisterRequest{Email: "taken@example.com", Password: "longenough1"},
			status: http.StatusConflict,
			code:   authsdk.ErrorCodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, req{method: http.MethodPost, path: "/v1/auth/register", body: tt.body})
			if tt.code != "" {
				requireAPIError(t, resp, tt.status, tt.code)
				return
			}
			require.Equal(t, tt.status, resp.StatusCode)
			u := decode[authsdk.UserResponse](t, resp)
			require.Equal(t, "new@example.com", u.Email)
			require.Equal(t, "USER", u.Role)
			require.False(t, u.EmailVerified)
		})
	}
}

func TestUsersEndpoints(t *testing.T) {
	h := newHarness(t)
	admin := h.seed(t, "admin@example.com", domain.RoleAdmin)
	alice := h.seed(t, "alice@example.com", domain.RoleUser)
	bob := h.seed(t, "bob@example.com", domain.RoleUser)

	adminTok := h.login(t, admin.Email).AccessToken
	aliceTok := h.login(t, alice.Email).AccessToken

	t.Run("list requires admin", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/users", bearer: aliceTok})
		requireAPIError(t, resp, http.StatusForbidden, authsdk.ErrorCodeForbidden)

		resp = h.do(t, req{method: http.MethodGet, path: "/v1/users?limit=2", bearer: adminTok})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		page := decode[authsdk.UserListResponse](t, resp)
		require.Equal(t, 3, page.Total)
		require.Equal(t, 2, page.Limit)
		require.Len(t, page.Users, 2)
	})

	t.Run("bad paging", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/users?limit=x", bearer: adminTok})
		requireAPIError(t, resp, http.StatusBadRequest, authsdk.ErrorCodeBadRequest)
	})

	t.Run("read self and others", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/users/" + alice.ID, bearer: aliceTok})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = h.do(t, req{method: http.MethodGet, path: "/v1/users/" + bob.ID, bearer: aliceTok})
		requireAPIError(t, resp, http.StatusForbidden, authsdk.ErrorCodeForbidden)

		resp = h.do(t, req{method: http.MethodGet, path: "/v1/users/" + bob.ID, bearer: adminTok})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, bob.Email, decode[authsdk.UserResponse](t, resp).Email)
	})

	t.Run("rename self", func(t *testing.T) {
		name := "Alice Liddell"
		resp := h.do(t, req{
			method: http.MethodPatch,
			path:   "/v1/users/" + alice.ID,
			bearer: aliceTok,
			body:   authsdk.UpdateUserRequest{Name: &name},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, name, decode[authsdk.UserResponse](t, resp).Name)
	})

	t.Run("role changes", func(t *testing.T) {
		mod, unknown, sysadmin := "moderator", "ROOT", "SYSADMIN"

		resp := h.do(t, req{method: http.MethodPatch, path: "/v1/users/" + bob.ID, bearer: aliceTok, body: authsdk.UpdateUserRequest{Role: &mod}})
		requireAPIError(t, resp, http.StatusForbidden, authsdk.ErrorCodeForbidden)

		resp = h.do(t, req{method: http.MethodPatch, path: "/v1/users/" + bob.ID, bearer: adminTok, body: authsdk.UpdateUserRequest{Role: &unknown}})
		requireAPIError(t, resp, http.StatusBadRequest, authsdk.ErrorCodeValidationFailed)

		resp = h.do(t, req{method: http.MethodPatch, path: "/v1/users/" + bob.ID, bearer: adminTok, body: authsdk.UpdateUserRequest{Role: &sysadmin}})
		requireAPIError(t, resp, http.StatusForbidden, authsdk.ErrorCodeForbidden)

		resp = h.do(t, req{method: http.MethodPatch, path: "/v1/users/" + bob.ID, bearer: adminTok, body: authsdk.UpdateUserRequest{Role: &mod}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "MODERATOR", decode[authsdk.UserResponse](t, resp).Role)
	})

	t.Run("delete", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodDelete, path: "/v1/users/" + bob.ID, bearer: aliceTok})
		requireAPIError(t, resp, http.StatusForbidden, authsdk.ErrorCodeForbidden)

		resp = h.do(t, req{method: http.MethodDelete, path: "/v1/users/" + bob.ID, bearer: adminTok})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = h.do(t, req{method: http.MethodGet, path: "/v1/users/" + bob.ID, bearer: adminTok})
		requireAPIError(t, resp, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	h := newHarness(t)
	admin := h.seed(t, "admin@example.com", domain.RoleAdmin)
	alice := h.seed(t, "alice@example.com", domain.RoleUser)

	adminTok := h.login(t, admin.Email)
	aliceTok := h.login(t, alice.Email)

	t.Run("summary requires admin", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/analytics/summary", bearer: aliceTok.AccessToken})
		requireAPIError(t, resp, http.StatusForbidden, authsdk.ErrorCodeForbidden)
	})

	t.Run("summary", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/analytics/summary?window=1h", bearer: adminTok.AccessToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		sum := decode[authsdk.AnalyticsSummaryResponse](t, resp)
		require.Equal(t, "1h0m0s", sum.Window)
		require.Equal(t, 2, sum.Users)
		require.Positive(t, sum.Runtime.Goroutines)
	})

	t.Run("bad window", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/v1/analytics/summary?window=soon", bearer: adminTok.AccessToken})
		requireAPIError(t, resp, http.StatusBadRequest, authsdk.ErrorCodeBadRequest)
	})

	t.Run("dashboard renders html", func(t *testing.T) {
		resp := h.do(t, req{method: http.MethodGet, path: "/dashboard", bearer: adminTok.AccessToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), admin.Email)
	})

	t.Run("dashboard renews from cookie", func(t *testing.T) {
		h.clock.Advance(20 * time.Minute)
		resp := h.do(t, req{
			method:  http.MethodGet,
			path:    "/dashboard",
			bearer:  adminTok.AccessToken,
			refresh: adminTok.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get(transport.AccessTokenHeader))
	})
}

func TestRequestsAreRecorded(t *testing.T) {
	h := newHarness(t)
	alice := h.seed(t, "alice@example.com", domain.RoleUser)
	tok := h.login(t, alice.Email)

	require.Equal(t, http.StatusOK, h.do(t, req{method: http.MethodGet, path: "/livez"}).StatusCode)
	require.Equal(t, http.StatusOK, h.do(t, req{method: http.MethodGet, path: "/v1/users/" + alice.ID, bearer: tok.AccessToken}).StatusCode)
	require.Equal(t, http.StatusNotFound, h.do(t, req{method: http.MethodGet, path: "/no/such/route"}).StatusCode)

	h.flush()
	h.clock.Advance(time.Second)

	sum, err := h.analytics.Summary(t.Context(), time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 4, sum.Traffic.TotalRequests)
	require.EqualValues(t, 1, sum.Traffic.ActiveUsers)
	require.EqualValues(t, 3, sum.Traffic.StatusClasses["2xx"])
	require.EqualValues(t, 1, sum.Traffic.StatusClasses["4xx"])
	require.EqualValues(t, 1, sum.Traffic.AuthStates[string(session.StateAuthenticated)])

	routes := map[string]int64{}
	for _, rc := range sum.Traffic.TopRoutes {
		routes[rc.Route] = rc.Count
	}
	require.EqualValues(t, 1, routes["GET /v1/users/{id}"])
	require.EqualValues(t, 1, routes["unmatched"])
	require.EqualValues(t, 1, routes["POST /v1/auth/login"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, req{method: http.MethodGet, path: "/livez"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := decode[authsdk.HealthResponse](t, resp)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)
	require.Nil(t, live.Checks)

	resp = h.do(t, req{method: http.MethodGet, path: "/readyz"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decode[authsdk.HealthResponse](t, resp)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Tokens)

	resp = h.do(t, req{method: http.MethodGet, path: "/v1/auth/session"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, req{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `keystone_http_requests_total{method="GET",route="GET /livez",status="200"} 1`)
	require.Contains(t, string(body), `keystone_auth_outcomes_total{state="ANONYMOUS:no_credentials",transport="cookie"} 1`)
}

func TestReadyzReportsDatabaseFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	resp := h.do(t, req{method: http.MethodGet, path: "/readyz"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	ready := decode[authsdk.HealthResponse](t, resp)
	require.Equal(t, "degraded", ready.Status)
	require.Contains(t, ready.Checks.Database, "error")
	require.Equal(t, "ok", ready.Checks.Tokens)
}

func TestBootstrap(t *testing.T) {
	h := newHarness(t)
	body := authsdk.BootstrapRequest{AdminEmail: "root@example.com", AdminName: "Root", AdminPassword: "sup3rsecret"}
	withToken := func(tok string) map[string]string {
		return map[string]string{authsdk.BootstrapTokenHeader: tok}
	}

	resp := h.do(t, req{method: http.MethodPost, path: "/v1/bootstrap", body: body})
	requireAPIError(t, resp, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)

	resp = h.do(t, req{method: http.MethodPost, path: "/v1/bootstrap", body: body, header: withToken("wrong")})
	requireAPIError(t, resp, http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized)

	resp = h.do(t, req{
		method: http.MethodPost,
		path:   "/v1/bootstrap",
		body:   authsdk.BootstrapRequest{AdminEmail: "root"},
		header: withToken(bootstrapToken),
	})
	apiErr := requireAPIError(t, resp, http.StatusBadRequest, authsdk.ErrorCodeValidationFailed)
	require.Contains(t, apiErr.Details, "admin_email")

	resp = h.do(t, req{method: http.MethodPost, path: "/v1/bootstrap", body: body, header: withToken(bootstrapToken)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[authsdk.BootstrapResponse](t, resp)
	require.Equal(t, "root@example.com", created.AdminEmail)

	u, err := h.store.Users().GetUserByID(t.Context(), created.AdminUserID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleSysadmin, u.Role)

	resp = h.do(t, req{method: http.MethodPost, path: "/v1/bootstrap", body: body, header: withToken(bootstrapToken)})
	requireAPIError(t, resp, http.StatusConflict, authsdk.ErrorCodeConflict)
}

func TestGraphQLMountedWithCookieAdapter(t *testing.T) {
	h := newHarness(t)
	alice := h.seed(t, "alice@example.com", domain.RoleUser)
	tok := h.login(t, alice.Email)
	h.clock.Advance(16 * time.Minute)

	b, err := json.Marshal(map[string]any{"query": `{ me { id email } }`})
	require.NoError(t, err)
	hr, err := http.NewRequestWithContext(t.Context(), http.MethodPost, h.srv.URL+"/graphql", bytes.NewReader(b))
	require.NoError(t, err)
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	hr.AddCookie(&http.Cookie{Name: h.cookie.Name, Value: tok.RefreshToken})

	resp, err := http.DefaultClient.Do(hr)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(transport.AccessTokenHeader))

	var out struct {
		Data struct {
			Me struct {
				ID string `json:"id"`
			} `json:"me"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, alice.ID, out.Data.Me.ID)
}

func TestLoginLimitedPerAccount(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@example.com", domain.RoleUser)
	h.seed(t, "bob@example.com", domain.RoleUser)

	attempt := func(email, password string) *http.Response {
		resp := h.do(t, req{
			method: http.MethodPost,
			path:   "/v1/auth/login",
			body:   authsdk.LoginRequest{Email: email, Password: password},
		})
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	// The default strict profile allows five attempts per minute.
	for range 5 {
		require.NotEqual(t, http.StatusTooManyRequests, attempt("alice@example.com", "wrong").StatusCode)
	}
	resp := attempt("Alice@Example.com", "wrong")
	requireAPIError(t, resp, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimited)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// The same address can still sign in to another account.
	require.Equal(t, http.StatusOK, attempt("bob@example.com", testPassword).StatusCode)
}
