package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	"github.com/aussiebroadwan/keystone/internal/keystone/graphql"
	khttp "github.com/aussiebroadwan/keystone/internal/keystone/http"
	"github.com/aussiebroadwan/keystone/internal/keystone/metrics"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/store/drivers/sqlstore"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/idx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	testPassword   = "P@ssw0rd1"
	bootstrapToken = "bootstrap-secret"
)

type harness struct {
	clock     *clockwork.FakeClock
	store     *sqlstore.Store
	hasher    *cryptox.Hasher
	metrics   *metrics.Metrics
	recorder  *service.RequestRecorder
	analytics *service.AnalyticsService
	cookie    transport.CookieConfig
	srv       *httptest.Server

	stopOnce sync.Once
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Now().UTC().Truncate(time.Second))
	st, err := sqlstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	codec, err := jwtx.NewCodec(jwtx.Config{
		Issuer:        "keystone-test",
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		Clock:         clock,
	})
	require.NoError(t, err)

	m := metrics.New()
	auth, err := session.NewAuthenticator(session.Config{
		Codec:     codec,
		Users:     st.Users(),
		Clock:     clock,
		OnOutcome: m.ObserveAuth,
	})
	require.NoError(t, err)

	h := &harness{
		clock:   clock,
		store:   st,
		hasher:  cryptox.NewHasher("test-pepper"),
		metrics: m,
	}

	hub := events.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	h.recorder = service.NewRequestRecorder(st, discard(), service.RecorderOptions{
		FlushEvery: time.Hour,
		Clock:      clock,
		OnDrop:     m.RequestLogDropped,
	})
	h.recorder.Start()
	t.Cleanup(h.flush)

	authSvc := &service.AuthService{Store: st, Sessions: auth, Hasher: h.hasher, Clock: clock}
	userSvc := &service.UserService{Store: st, Clock: clock}
	h.analytics = &service.AnalyticsService{
		Store:    st,
		Clock:    clock,
		Runtime:  m,
		Live:     hub,
		Recorder: h.recorder,
	}

	schema, err := graphql.NewSchema(&graphql.Resolver{
		Auth:     authSvc,
		Users:    userSvc,
		Sessions: auth,
		Hub:      hub,
	})
	require.NoError(t, err)

	adapter := transport.NewHTTPAdapter(auth, transport.CookieConfig{Clock: clock}, nil)
	h.cookie = adapter.Cookie()

	router := khttp.NewRouter(adapter, codec, "test", st, clock, discard())
	router.AuthService = authSvc
	router.UserService = userSvc
	router.AnalyticsService = h.analytics
	router.BootstrapService = &service.BootstrapService{Store: st, Hasher: h.hasher, Clock: clock, Token: bootstrapToken}
	router.Recorder = h.recorder
	router.Metrics = m
	router.GraphQL = schema
	router.WSAdapter = transport.NewWSAdapter(auth, nil)
	router.WSOptions = graphql.WSOptions{InitTimeout: 500 * time.Millisecond}
	router.ApplyRoutes()

	h.srv = httptest.NewServer(router)
	t.Cleanup(h.srv.Close)
	return h
}

// flush drains the request recorder into the store. It may only run once.
func (h *harness) flush() {
	h.stopOnce.Do(h.recorder.Stop)
}

func (h *harness) seed(t *testing.T, email string, role domain.Role) domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	require.NoError(t, err)
	now := h.clock.Now()
	u := domain.User{
		ID:              idx.NewAt(now).String(),
		Email:           email,
		Name:            strings.Split(email, "@")[0],
		PasswordHash:    hash,
		Role:            role,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, h.store.Users().CreateUser(t.Context(), u))
	return u
}

type req struct {
	method  string
	path    string
	body    any
	bearer  string
	refresh string
	header  map[string]string
}

func (h *harness) do(t *testing.T, r req) *http.Response {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	hr, err := http.NewRequestWithContext(t.Context(), r.method, h.srv.URL+r.path, body)
	require.NoError(t, err)
	if r.body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		hr.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	if r.refresh != "" {
		hr.AddCookie(&http.Cookie{Name: h.cookie.Name, Value: r.refresh})
	}
	for k, v := range r.header {
		hr.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(hr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) refreshCookie(resp *http.Response) *http.Cookie {
	var last *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == h.cookie.Name {
			last = c
		}
	}
	return last
}

// login returns the token pair minted by the REST login endpoint.
func (h *harness) login(t *testing.T, email string) authsdk.TokenResponse {
	t.Helper()
	resp := h.do(t, req{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   authsdk.LoginRequest{Email: email, Password: testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[authsdk.TokenResponse](t, resp)
}

func requireAPIError(t *testing.T, resp *http.Response, status int, code string) authsdk.APIError {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	apiErr := decode[authsdk.APIError](t, resp)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}
