package service_test

import (
	"testing"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func principal(u domain.User) httpx.Principal {
	return httpx.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

func ptr[T any](v T) *T { return &v }

func TestUserService_Read(t *testing.T) {
	e := newEnv(t)
	alice := e.seed(t, "alice@x.com", domain.RoleUser)
	bob := e.seed(t, "bob@x.com", domain.RoleUser)
	admin := e.seed(t, "admin@x.com", domain.RoleAdmin)

	got, err := e.users.GetUserByID(t.Context(), principal(alice), alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@x.com", got.Email)

	_, err = e.users.GetUserByID(t.Context(), principal(alice), bob.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	got, err = e.users.GetUserByID(t.Context(), principal(admin), bob.ID)
	require.NoError(t, err)
	require.Equal(t, bob.ID, got.ID)

	_, err = e.users.GetUserByID(t.Context(), principal(admin), "missing")
	require.ErrorIs(t, err, service.ErrNotFound)

	_, err = e.users.ListUsers(t.Context(), principal(alice), 10, 0)
	require.ErrorIs(t, err, service.ErrForbidden)

	page, err := e.users.ListUsers(t.Context(), principal(admin), 2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 2)
}

func TestUserService_Update(t *testing.T) {
	e := newEnv(t)
	alice := e.seed(t, "alice@x.com", domain.RoleUser)
	bob := e.seed(t, "bob@x.com", domain.RoleUser)
	admin := e.seed(t, "admin@x.com", domain.RoleAdmin)
	root := e.seed(t, "root@x.com", domain.RoleSysadmin)

	cases := []struct {
		name   string
		caller domain.User
		target domain.User
		upd    domain.UserUpdate
		want   error
	}{
		{"self rename", alice, alice, domain.UserUpdate{Name: ptr("Alice A")}, nil},
		{"rename other", alice, bob, domain.UserUpdate{Name: ptr("Bobby")}, service.ErrForbidden},
		{"self promote", alice, alice, domain.UserUpdate{Role: ptr(domain.RoleAdmin)}, service.ErrForbidden},
		{"admin self demote", admin, admin, domain.UserUpdate{Role: ptr(domain.RoleUser)}, service.ErrForbidden},
		{"blank name", alice, alice, domain.UserUpdate{Name: ptr("   ")}, service.ErrInvalidInput},
		{"unknown role", admin, bob, domain.UserUpdate{Role: ptr(domain.Role("GOD"))}, service.ErrInvalidInput},
		{"grant above own rank", admin, bob, domain.UserUpdate{Role: ptr(domain.RoleSysadmin)}, service.ErrForbidden},
		{"manage higher rank", admin, root, domain.UserUpdate{Name: ptr("Root")}, service.ErrForbidden},
		{"admin promotes", admin, bob, domain.UserUpdate{Role: ptr(domain.RoleModerator)}, nil},
		{"sysadmin grants admin", root, bob, domain.UserUpdate{Role: ptr(domain.RoleAdmin)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := e.users.UpdateUser(t.Context(), principal(tc.caller), tc.target.ID, tc.upd)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
				return
			}
			require.NoError(t, err)
			if tc.upd.Name != nil {
				require.Equal(t, *tc.upd.Name, u.Name)
			}
			if tc.upd.Role != nil {
				require.Equal(t, *tc.upd.Role, u.Role)
			}
		})
	}

	stored, err := e.store.Users().GetUserByID(t.Context(), bob.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, stored.Role)
}

func TestUserService_RoleChangeEndsSession(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "bob@x.com", domain.RoleUser)
	admin := e.seed(t, "admin@x.com", domain.RoleAdmin)

	res, err := e.authSvc.Login(t.Context(), domain.TransportHeader, "bob@x.com", testPassword)
	require.NoError(t, err)
	require.True(t, res.User.LoggedIn())

	// Renaming leaves the session alone.
	u, err := e.users.UpdateUser(t.Context(), principal(admin), res.User.ID, domain.UserUpdate{Name: ptr("Bob")})
	require.NoError(t, err)
	require.True(t, u.LoggedIn())

	u, err = e.users.UpdateUser(t.Context(), principal(admin), res.User.ID, domain.UserUpdate{Role: ptr(domain.RoleModerator)})
	require.NoError(t, err)
	require.False(t, u.LoggedIn(), "tokens minted for the old role stop working")

	stored, err := e.store.Users().GetUserByID(t.Context(), res.User.ID)
	require.NoError(t, err)
	require.Empty(t, stored.AccessTokenFingerprint)
}

func TestUserService_Delete(t *testing.T) {
	e := newEnv(t)
	alice := e.seed(t, "alice@x.com", domain.RoleUser)
	bob := e.seed(t, "bob@x.com", domain.RoleUser)
	admin := e.seed(t, "admin@x.com", domain.RoleAdmin)

	require.ErrorIs(t, e.users.DeleteUser(t.Context(), principal(alice), bob.ID), service.ErrForbidden)
	require.NoError(t, e.users.DeleteUser(t.Context(), principal(admin), bob.ID))
	require.ErrorIs(t, e.users.DeleteUser(t.Context(), principal(admin), bob.ID), service.ErrNotFound)

	_, err := e.users.GetUserByID(t.Context(), principal(admin), bob.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	// Deleted users cannot log in.
	_, err = e.authSvc.Login(t.Context(), domain.TransportHeader, "bob@x.com", testPassword)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	require.NoError(t, e.users.DeleteUser(t.Context(), principal(alice), alice.ID), "users may delete themselves")
	require.Contains(t, e.events.types(), domain.EventUserDeleted)
}

func TestClampPage(t *testing.T) {
	cases := []struct{ limit, offset, wantLimit, wantOffset int }{
		{0, 0, service.DefaultPageSize, 0},
		{-5, -1, service.DefaultPageSize, 0},
		{1000, 10, service.MaxPageSize, 10},
		{7, 3, 7, 3},
	}
	for _, tc := range cases {
		l, o := service.ClampPage(tc.limit, tc.offset)
		require.Equal(t, tc.wantLimit, l)
		require.Equal(t, tc.wantOffset, o)
	}
}
