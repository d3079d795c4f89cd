package domain

import (
	"time"

	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

// Role aliases the token role so records and claims share one closed set.
type Role = jwtx.Role

const (
	RoleUser      = jwtx.RoleUser
	RoleModerator = jwtx.RoleModerator
	RoleAdmin     = jwtx.RoleAdmin
	RoleSysadmin  = jwtx.RoleSysadmin
)

type User struct {
	ID           string
	Email        string // lower-cased, unique
	Name         string
	PasswordHash string // argon2id PHC string
	Role         Role

	// AccessTokenFingerprint is the SHA-256 fingerprint of the most recently
	// issued access token. Empty means logged out.
	AccessTokenFingerprint string
	AccessTokenExpiresAt   *time.Time

	EmailVerifiedAt       *time.Time
	VerificationTokenHash string
	VerificationExpiresAt *time.Time

	ResetTokenHash string
	ResetExpiresAt *time.Time

	FailedLogins int
	LastLoginAt  *time.Time
	LastActiveAt *time.Time

	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the claim set the codec signs for this user.
func (u User) Identity() jwtx.Identity {
	return jwtx.Identity{Subject: u.ID, Email: u.Email, Role: u.Role}
}

// EmailVerified reports whether the address has been confirmed.
func (u User) EmailVerified() bool { return u.EmailVerifiedAt != nil }

// LoggedIn reports whether an access token fingerprint is currently stored.
func (u User) LoggedIn() bool { return u.AccessTokenFingerprint != "" }

// AuthFingerprint is what the persistence hook writes after issuing an access token.
type AuthFingerprint struct {
	Fingerprint string
	ExpiresAt   time.Time
	IssuedAt    time.Time
}

// UserUpdate carries the mutable profile fields; nil leaves a field unchanged.
type UserUpdate struct {
	Name *string
	Role *Role
}

// UserPage is one page of a user listing.
type UserPage struct {
	Users  []User
	Total  int
	Limit  int
	Offset int
}
