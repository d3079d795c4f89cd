package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers implement it and expose
// sub-repositories so transactions cannot be nested by accident.
type Store interface {
	Users() Users
	RequestLogs() RequestLogs

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	Close() error
}

// Tx exposes the same repositories bound to one transaction.
type Tx interface {
	Users() Users
	RequestLogs() RequestLogs
}

type Users interface {
	// GetUserByID returns a live (not soft-deleted) user.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already lower-cased address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts u. Duplicate emails yield ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// ListUsers returns live users ordered by creation, newest first.
	ListUsers(ctx context.Context, limit, offset int) (domain.UserPage, error)

	// CountUsers counts live users.
	CountUsers(ctx context.Context) (int, error)

	// UpdateUser applies the non-nil fields of upd. A role change clears the
	// fingerprint in the same statement, logging the user out.
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate, at time.Time) (domain.User, error)

	// SoftDeleteUser marks the user deleted and clears its fingerprint.
	SoftDeleteUser(ctx context.Context, id string, at time.Time) error

	// UpdateAuthFingerprint overwrites the stored access token fingerprint.
	// A single-row UPDATE; concurrent writers are last-write-wins.
	UpdateAuthFingerprint(ctx context.Context, id string, fp domain.AuthFingerprint) (domain.User, error)

	// ClearAuthFingerprint resets the fingerprint to the logged-out sentinel.
	ClearAuthFingerprint(ctx context.Context, id string, at time.Time) (domain.User, error)

	// RecordLoginSuccess zeroes the failed login counter and stamps last_login_at.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error

	// IncrementFailedLogins returns the counter after incrementing.
	IncrementFailedLogins(ctx context.Context, id string, at time.Time) (int, error)

	TouchLastActive(ctx context.Context, id string, at time.Time) error

	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, at time.Time) error

	// VerifyEmail consumes a live verification token.
	VerifyEmail(ctx context.Context, tokenHash string, at time.Time) (domain.User, error)

	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, at time.Time) error

	// ResetPassword consumes a live reset token, replaces the password hash,
	// unlocks the account and clears the access token fingerprint.
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, at time.Time) (domain.User, error)

	// ClearExpiredTokens drops lapsed reset/verification tokens and access
	// token fingerprints. Returns the number of rows touched.
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type RequestLogs interface {
	InsertRequestLogs(ctx context.Context, logs []domain.RequestLog) error

	// SummarizeRequests aggregates logs created at or after since.
	SummarizeRequests(ctx context.Context, since, until time.Time, topN int) (domain.TrafficSummary, error)

	PurgeRequestLogs(ctx context.Context, before time.Time) (int64, error)
}
