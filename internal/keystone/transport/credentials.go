// Package transport adapts HTTP requests and WebSocket connection
// parameters to the session authenticator and hands renewed tokens back the
// way each surface allows.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/keystone/internal/keystone/session"
)

const (
	// AccessTokenHeader carries a renewed access token on HTTP responses.
	AccessTokenHeader = "X-Access-Token"

	bearerPrefix = "bearer "
)

// BearerFromHeader reads Authorization: Bearer <token>. A missing header is
// not an error; any other scheme is ErrMalformedCredentials.
func BearerFromHeader(h http.Header) (string, error) {
	raw := strings.TrimSpace(h.Get("Authorization"))
	if raw == "" {
		return "", nil
	}
	return parseBearer(raw)
}

func parseBearer(raw string) (string, error) {
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", fmt.Errorf("%w: authorization scheme is not Bearer", session.ErrMalformedCredentials)
	}
	tok := strings.TrimSpace(raw[len(bearerPrefix):])
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", fmt.Errorf("%w: empty or split bearer token", session.ErrMalformedCredentials)
	}
	return tok, nil
}

// CredentialsFromInit extracts credentials from a graphql-transport-ws
// connection_init payload. Accepted keys are authorization (or
// Authorization) holding "Bearer <token>" or a bare token, authToken holding
// a bare token, and refreshToken. An absent payload is anonymous; a payload
// that is not an object, or a non-string credential, is malformed.
func CredentialsFromInit(payload json.RawMessage) (session.Credentials, error) {
	var creds session.Credentials

	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return creds, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return creds, fmt.Errorf("%w: connection_init payload must be an object", session.ErrMalformedCredentials)
	}

	str := func(key string) (string, bool, error) {
		v, ok := fields[key]
		if !ok || v == nil {
			return "", false, nil
		}
		s, ok := v.(string)
		if !ok {
			return "", false, fmt.Errorf("%w: %s must be a string", session.ErrMalformedCredentials, key)
		}
		return strings.TrimSpace(s), s != "", nil
	}

	for _, key := range []string{"authorization", "Authorization", "authToken"} {
		v, ok, err := str(key)
		if err != nil {
			return creds, err
		}
		if !ok {
			continue
		}
		if strings.Contains(v, " ") {
			if v, err = parseBearer(v); err != nil {
				return creds, err
			}
		}
		creds.Bearer = v
		break
	}

	refresh, _, err := str("refreshToken")
	if err != nil {
		return creds, err
	}
	creds.Refresh = refresh
	return creds, nil
}
