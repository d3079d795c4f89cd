package graphql_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	"github.com/aussiebroadwan/keystone/internal/keystone/graphql"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/store/drivers/sqlstore"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/idx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const testPassword = "P@ssw0rd1"

type connCounter struct{ open atomic.Int64 }

func (c *connCounter) WebSocketOpened() { c.open.Add(1) }
func (c *connCounter) WebSocketClosed() { c.open.Add(-1) }

type harness struct {
	clock  *clockwork.FakeClock
	store  *sqlstore.Store
	hasher *cryptox.Hasher
	hub    *events.Hub
	conns  *connCounter
	cookie transport.CookieConfig
	srv    *httptest.Server
}

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

	auth, err := session.NewAuthenticator(session.Config{Codec: codec, Users: st.Users(), Clock: clock})
	require.NoError(t, err)

	h := &harness{
		clock:  clock,
		store:  st,
		hasher: cryptox.NewHasher("test-pepper"),
		hub:    events.NewHub(),
		conns:  &connCounter{},
	}
	t.Cleanup(func() { _ = h.hub.Close() })

	schema, err := graphql.NewSchema(&graphql.Resolver{
		Auth: &service.AuthService{
			Store:    st,
			Sessions: auth,
			Hasher:   h.hasher,
			Clock:    clock,
			Events:   h.hub,
		},
		Users:    &service.UserService{Store: st, Clock: clock, Events: h.hub},
		Sessions: auth,
		Hub:      h.hub,
	})
	require.NoError(t, err)

	adapter := transport.NewHTTPAdapter(auth, transport.CookieConfig{Clock: clock}, nil)
	h.cookie = adapter.Cookie()

	mux := http.NewServeMux()
	mux.Handle("POST /graphql", httpx.Chain(graphql.NewHTTPHandler(schema, h.cookie), adapter.WithCookie()))
	mux.Handle("GET /graphql", graphql.NewWSHandler(schema, transport.NewWSAdapter(auth, nil), h.conns, graphql.WSOptions{
		InitTimeout:       500 * time.Millisecond,
		KeepAliveInterval: time.Minute,
	}))
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
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

type gqlResult struct {
	Data       map[string]any   `json:"data"`
	Errors     []gqlError       `json:"errors"`
	Extensions map[string]any   `json:"extensions"`
	raw        *http.Response
}

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

func (r gqlResult) code(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, r.Errors, "expected an error")
	code, _ := r.Errors[0].Extensions["code"].(string)
	return code
}

type call struct {
	query   string
	vars    map[string]any
	bearer  string
	refresh string
}

func (h *harness) do(t *testing.T, c call) gqlResult {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": c.query, "variables": c.vars})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, h.srv.URL+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.refresh != "" {
		req.AddCookie(&http.Cookie{Name: h.cookie.Name, Value: c.refresh})
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out gqlResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	out.raw = resp
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

// login returns the access and refresh tokens from the login mutation.
func (h *harness) login(t *testing.T, email string) (string, string) {
	t.Helper()
	res := h.do(t, call{
		query: `mutation($e: String!, $p: String!) { login(email: $e, password: $p) { accessToken refreshToken } }`,
		vars:  map[string]any{"e": email, "p": testPassword},
	})
	require.Empty(t, res.Errors)
	payload := res.Data["login"].(map[string]any)
	return payload["accessToken"].(string), payload["refreshToken"].(string)
}

func path(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}
