// Package session turns the credentials a transport extracted into an
// authentication verdict, renewing expired access tokens from a refresh
// token when one is available.
//
// A request moves UNVERIFIED -> AUTHENTICATED | EXPIRED | REJECTED and
// EXPIRED -> REFRESHED | REFRESH_REJECTED. Every rejected state collapses to
// an anonymous Outcome; only persistence failures and malformed input are
// returned as errors.
package session

import (
	"errors"

	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

var (
	// ErrPersistence reports that a freshly minted access token could not be
	// recorded. The token must not reach the caller.
	ErrPersistence = errors.New("session: persistence failed")

	// ErrMalformedCredentials reports credentials that could not be read at
	// all, such as a non-Bearer Authorization scheme.
	ErrMalformedCredentials = errors.New("session: malformed credentials")

	// ErrRefreshRejected is returned by the explicit refresh operation when
	// the refresh token is absent, invalid, expired or orphaned.
	ErrRefreshRejected = errors.New("session: refresh rejected")
)

// State is the terminal verdict for one request.
type State string

const (
	StateAuthenticated State = "AUTHENTICATED"
	StateRefreshed     State = "REFRESHED"
	StateAnonymous     State = "ANONYMOUS"
)

// Reason explains an anonymous verdict.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoCredentials   Reason = "no_credentials"
	ReasonRejected        Reason = "rejected"
	ReasonRevoked         Reason = "revoked"
	ReasonRefreshRejected Reason = "refresh_rejected"
)

// Credentials is what a transport adapter extracted. Either field may be empty.
type Credentials struct {
	Bearer  string
	Refresh string
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	Access  jwtx.Token
	Refresh jwtx.Token
}

// Outcome is the result of authenticating one request.
type Outcome struct {
	State  State
	Reason Reason

	// Identity is set for AUTHENTICATED and REFRESHED.
	Identity jwtx.Identity

	// Renewed carries the new pair when State is REFRESHED.
	Renewed *Pair
}

// Authenticated reports whether the outcome carries an identity.
func (o Outcome) Authenticated() bool {
	return o.State == StateAuthenticated || o.State == StateRefreshed
}

// Label is the metric and request-log label for the outcome.
func (o Outcome) Label() string {
	if o.State == StateAnonymous && o.Reason != ReasonNone {
		return string(o.State) + ":" + string(o.Reason)
	}
	return string(o.State)
}

func anonymous(r Reason) Outcome {
	return Outcome{State: StateAnonymous, Reason: r}
}
