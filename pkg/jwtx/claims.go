package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for the access/refresh pair.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Purpose tags a token as either a short-lived access credential or a
// long-lived refresh credential. Each purpose is signed with its own secret.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	return p == PurposeAccess || p == PurposeRefresh
}

func (p Purpose) String() string { return string(p) }

// Role is the authorization level carried inside every token.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
	RoleSysadmin  Role = "SYSADMIN"
)

var roleRank = map[Role]int{
	RoleUser:      1,
	RoleModerator: 2,
	RoleAdmin:     3,
	RoleSysadmin:  4,
}

// ParseRole maps the wire form onto a Role, reporting false for unknown values.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleRank[r]
	return r, ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is ranked at or above min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && r.Valid()
}

func (r Role) String() string { return string(r) }

// Identity is the claim set minted at login or refresh. It is never mutated
// after signing; renewal produces a new Identity.
type Identity struct {
	Subject   string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Validate checks the fields every signed token must carry.
func (id Identity) Validate() error {
	switch {
	case id.Subject == "":
		return errorf(ErrEncoding, "missing subject")
	case id.Email == "":
		return errorf(ErrEncoding, "missing email")
	case !id.Role.Valid():
		return errorf(ErrEncoding, "unknown role %q", id.Role)
	}
	return nil
}

// Token is a signed compact JWT together with the identity it encodes.
type Token struct {
	Raw       string
	Purpose   Purpose
	Identity  Identity
	ExpiresAt time.Time
}

func (t Token) String() string { return t.Raw }

// claims is the wire form of an Identity.
type claims struct {
	jwt.RegisteredClaims

	Email   string  `json:"email"`
	Role    Role    `json:"role"`
	Purpose Purpose `json:"typ"`
}

func (c *claims) identity() Identity {
	id := Identity{
		Subject: c.Subject,
		Email:   c.Email,
		Role:    c.Role,
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.UTC()
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.UTC()
	}
	return id
}
