package jwtx

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureInvalid covers bad signatures, unexpected algorithms and
	// structurally corrupt tokens. Tokens failing this way are never refreshed.
	ErrSignatureInvalid = errors.New("jwtx: signature invalid")

	// ErrTokenExpired is returned for correctly signed tokens whose exp is in
	// the past. Verify still returns the decoded Identity alongside it.
	ErrTokenExpired = errors.New("jwtx: token expired")

	// ErrPurposeMismatch is returned when an access token is presented as a
	// refresh token or vice versa.
	ErrPurposeMismatch = errors.New("jwtx: purpose mismatch")

	// ErrEncoding is returned by Issue when the identity is incomplete.
	ErrEncoding = errors.New("jwtx: encoding failed")

	// ErrMalformed is wrapped together with ErrSignatureInvalid when the
	// token could not be decoded at all.
	ErrMalformed = errors.New("jwtx: malformed token")

	// ErrConfig reports an unusable codec configuration.
	ErrConfig = errors.New("jwtx: invalid config")
)

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
