package graphql_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/graphql"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/stretchr/testify/require"
)

func TestHTTP_LoginProjectsSelection(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)

	res := h.do(t, call{
		query: `
			mutation Login($e: String!, $p: String!) {
				session: login(email: $e, password: $p) {
					__typename
					accessToken
					user { ...Profile }
				}
			}
			fragment Profile on User { email role emailVerified kind: __typename }`,
		vars: map[string]any{"e": "Alice@X.com", "p": testPassword},
	})
	require.Empty(t, res.Errors)
	require.Equal(t, http.StatusOK, res.raw.StatusCode)

	sess := res.Data["session"].(map[string]any)
	require.Equal(t, "AuthPayload", sess["__typename"])
	require.NotEmpty(t, sess["accessToken"])
	require.NotContains(t, sess, "refreshToken", "unselected fields are not returned")
	require.Equal(t, map[string]any{
		"email":         "alice@x.com",
		"role":          "USER",
		"emailVerified": true,
		"kind":          "User",
	}, sess["user"])

	ck := h.refreshCookie(res.raw)
	require.NotNil(t, ck, "login sets the refresh cookie")
	require.True(t, ck.HttpOnly)
}

func TestHTTP_MeRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)

	res := h.do(t, call{query: `{ me { id } }`})
	require.Equal(t, graphql.CodeUnauthenticated, res.code(t))
	require.Equal(t, []any{"me"}, res.Errors[0].Path)
	require.Contains(t, res.Data, "me")
	require.Nil(t, res.Data["me"])

	access, _ := h.login(t, "alice@x.com")
	res = h.do(t, call{query: `{ me { email } }`, bearer: access})
	require.Empty(t, res.Errors)
	require.Equal(t, "alice@x.com", path(res.Data, "me", "email"))
}

func TestHTTP_ForbiddenNullsNonNullRoot(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)
	access, _ := h.login(t, "alice@x.com")

	res := h.do(t, call{query: `{ users { total } }`, bearer: access})
	require.Equal(t, graphql.CodeForbidden, res.code(t))
	require.Nil(t, res.Data)
}

func TestHTTP_ValidationErrors(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, call{query: `{ nope }`})
	require.Equal(t, graphql.CodeValidation, res.code(t))
	require.Nil(t, res.Data)

	res = h.do(t, call{query: `subscription { userEvents { id } }`})
	require.Equal(t, graphql.CodeBadRequest, res.code(t))

	res = h.do(t, call{query: `query A { me { id } } query B { me { id } }`})
	require.Equal(t, graphql.CodeBadRequest, res.code(t))

	res = h.do(t, call{query: `{ __schema { queryType { name } } }`})
	require.Equal(t, graphql.CodeBadRequest, res.code(t))
	require.Equal(t, []any{"__schema"}, res.Errors[0].Path)
}

func TestHTTP_AdminUpdatesRoleWithVariables(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "admin@x.com", domain.RoleAdmin)
	bob := h.seed(t, "bob@x.com", domain.RoleUser)
	access, _ := h.login(t, "admin@x.com")

	res := h.do(t, call{
		query:  `mutation($id: ID!, $role: Role) { updateUser(id: $id, role: $role) { id role } }`,
		vars:   map[string]any{"id": bob.ID, "role": "MODERATOR"},
		bearer: access,
	})
	require.Empty(t, res.Errors)
	require.Equal(t, "MODERATOR", path(res.Data, "updateUser", "role"))

	res = h.do(t, call{
		query:  `query($n: Int) { users(limit: $n) { total limit users { email } } }`,
		vars:   map[string]any{"n": 1},
		bearer: access,
	})
	require.Empty(t, res.Errors)
	require.EqualValues(t, 2, path(res.Data, "users", "total"))
	require.EqualValues(t, 1, path(res.Data, "users", "limit"))
	require.Len(t, path(res.Data, "users", "users"), 1)

	res = h.do(t, call{
		query:  `query($id: ID!) { user(id: $id) { id } }`,
		vars:   map[string]any{"id": "missing"},
		bearer: access,
	})
	require.Empty(t, res.Errors, "unknown ids resolve to null")
	require.Nil(t, res.Data["user"])
}

func TestHTTP_SkipAndInclude(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)
	access, _ := h.login(t, "alice@x.com")

	res := h.do(t, call{
		query:  `query($full: Boolean!) { me { email name @include(if: $full) role @skip(if: true) } }`,
		vars:   map[string]any{"full": false},
		bearer: access,
	})
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"email": "alice@x.com"}, res.Data["me"])
}

func TestHTTP_TransparentRenewalExtension(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)
	access, refresh := h.login(t, "alice@x.com")

	h.clock.Advance(16 * time.Minute)

	res := h.do(t, call{query: `{ me { email } }`, bearer: access, refresh: refresh})
	require.Empty(t, res.Errors)
	require.Equal(t, "alice@x.com", path(res.Data, "me", "email"))

	renewed, ok := res.Extensions["renewedTokens"].(map[string]any)
	require.True(t, ok, "renewed pair is returned in extensions")
	require.NotEmpty(t, renewed["accessToken"])
	require.NotEqual(t, access, renewed["accessToken"])
	require.Equal(t, renewed["accessToken"], res.raw.Header.Get(transport.AccessTokenHeader))
	require.NotNil(t, h.refreshCookie(res.raw))

	// Without the refresh cookie the expired bearer is simply anonymous.
	res = h.do(t, call{query: `{ me { email } }`, bearer: access})
	require.Equal(t, graphql.CodeUnauthenticated, res.code(t))
	require.NotContains(t, res.Extensions, "renewedTokens")
}

func TestHTTP_RefreshTokenMutationUsesCookie(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)
	_, refresh := h.login(t, "alice@x.com")

	res := h.do(t, call{query: `mutation { refreshToken { accessToken user { email } } }`, refresh: refresh})
	require.Empty(t, res.Errors)
	require.NotEmpty(t, path(res.Data, "refreshToken", "accessToken"))
	require.Equal(t, "alice@x.com", path(res.Data, "refreshToken", "user", "email"))

	res = h.do(t, call{query: `mutation { refreshToken(refreshToken: "garbage") { accessToken } }`})
	require.Equal(t, graphql.CodeUnauthenticated, res.code(t))
	require.Nil(t, res.Data)
}

func TestHTTP_LogoutClearsCookie(t *testing.T) {
	h := newHarness(t)
	u := h.seed(t, "alice@x.com", domain.RoleUser)
	access, _ := h.login(t, "alice@x.com")

	res := h.do(t, call{query: `mutation { logout }`, bearer: access})
	require.Empty(t, res.Errors)
	require.Equal(t, true, res.Data["logout"])

	ck := h.refreshCookie(res.raw)
	require.NotNil(t, ck)
	require.Empty(t, ck.Value)

	stored, err := h.store.Users().GetUserByID(t.Context(), u.ID)
	require.NoError(t, err)
	require.False(t, stored.LoggedIn())
}

func TestHTTP_FailedMutationStopsLaterMutations(t *testing.T) {
	h := newHarness(t)
	u := h.seed(t, "alice@x.com", domain.RoleUser)

	// logout fails for an anonymous caller; login must not run after it.
	res := h.do(t, call{query: `mutation {
		logout
		login(email: "alice@x.com", password: "` + testPassword + `") { accessToken }
	}`})
	require.Equal(t, graphql.CodeUnauthenticated, res.code(t))
	require.Len(t, res.Errors, 1)
	require.Equal(t, []any{"logout"}, res.Errors[0].Path)
	require.Nil(t, res.Data)
	require.Nil(t, h.refreshCookie(res.raw), "no refresh cookie is issued")

	stored, err := h.store.Users().GetUserByID(t.Context(), u.ID)
	require.NoError(t, err)
	require.False(t, stored.LoggedIn(), "no access token fingerprint is stored")
	require.Nil(t, stored.LastLoginAt)
}

func TestHTTP_RegisterErrors(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)

	const q = `mutation($e: String!, $p: String!) { register(email: $e, password: $p, name: "A") { id } }`

	res := h.do(t, call{query: q, vars: map[string]any{"e": "alice@x.com", "p": testPassword}})
	require.Equal(t, graphql.CodeConflict, res.code(t))

	res = h.do(t, call{query: q, vars: map[string]any{"e": "new@x.com", "p": "short"}})
	require.Equal(t, graphql.CodeBadUserInput, res.code(t))

	res = h.do(t, call{query: q, vars: map[string]any{"e": "new@x.com", "p": testPassword}})
	require.Empty(t, res.Errors)
	require.NotEmpty(t, path(res.Data, "register", "id"))
}

func TestHTTP_BadBody(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Post(h.srv.URL+"/graphql", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
