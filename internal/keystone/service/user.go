package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// UserService is account CRUD with role checks. Callers are identified by
// the httpx.Principal the transport adapter attached.
type UserService struct {
	Store  store.Store
	Clock  clockwork.Clock
	Events events.Publisher
}

func (s *UserService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// canManage: admins manage anyone ranked at or below themselves.
func canManage(caller httpx.Principal, target domain.User) bool {
	if caller.UserID == target.ID {
		return true
	}
	return caller.Role.AtLeast(domain.RoleAdmin) && caller.Role.AtLeast(target.Role)
}

// GetUserByID fetches a user. Callers may read themselves; ADMIN and above
// may read anyone.
func (s *UserService) GetUserByID(ctx context.Context, caller httpx.Principal, userID string) (domain.User, error) {
	if caller.UserID != userID && !caller.Role.AtLeast(domain.RoleAdmin) {
		return domain.User{}, ErrForbidden
	}
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// ListUsers pages through live users, newest first. ADMIN and above only.
func (s *UserService) ListUsers(ctx context.Context, caller httpx.Principal, limit, offset int) (domain.UserPage, error) {
	if !caller.Role.AtLeast(domain.RoleAdmin) {
		return domain.UserPage{}, ErrForbidden
	}
	limit, offset = ClampPage(limit, offset)
	return s.Store.Users().ListUsers(ctx, limit, offset)
}

// ClampPage applies the default and maximum page sizes.
func ClampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// UpdateUser changes the name and role of a user. Names may be changed by
// the user or an admin. Roles may only be changed by an admin, never on the
// admin's own account, and never above the admin's own rank.
func (s *UserService) UpdateUser(ctx context.Context, caller httpx.Principal, userID string, upd domain.UserUpdate) (domain.User, error) {
	l := slogx.FromContext(ctx)

	target, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if !canManage(caller, target) {
		return domain.User{}, ErrForbidden
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || len(name) > maxNameLen {
			return domain.User{}, fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalidInput, maxNameLen)
		}
		upd.Name = &name
	}

	if upd.Role != nil {
		role := *upd.Role
		switch {
		case !role.Valid():
			return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
		case caller.UserID == userID:
			return domain.User{}, ErrForbidden
		case !caller.Role.AtLeast(domain.RoleAdmin) || !caller.Role.AtLeast(role):
			return domain.User{}, ErrForbidden
		}
	}

	if upd.Name == nil && upd.Role == nil {
		return target, nil
	}

	u, err := s.Store.Users().UpdateUser(ctx, userID, upd, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}

	if upd.Role != nil && *upd.Role != target.Role {
		l.Info("role changed",
			slog.String("user_id", userID),
			slog.String("from", target.Role.String()),
			slog.String("to", u.Role.String()),
			slog.String("by", caller.UserID),
		)
	}
	publish(ctx, s.Events, s.now(), domain.EventUserUpdated, u, "")
	return u, nil
}

// DeleteUser soft deletes a user and revokes its session. The email stays
// reserved.
func (s *UserService) DeleteUser(ctx context.Context, caller httpx.Principal, userID string) error {
	target, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !canManage(caller, target) {
		return ErrForbidden
	}

	if err := s.Store.Users().SoftDeleteUser(ctx, userID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", userID), slog.String("by", caller.UserID))
	publish(ctx, s.Events, s.now(), domain.EventUserDeleted, target, "")
	return nil
}
