package transport

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/jonboulle/clockwork"
)

// DefaultRefreshCookie is the name of the refresh token cookie.
const DefaultRefreshCookie = "keystone_refresh"

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool

	// Clock should be the token codec's clock so MaxAge agrees with Expires.
	Clock clockwork.Clock
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = DefaultRefreshCookie
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// ReadRefresh returns the refresh token cookie value, or "".
func (c CookieConfig) ReadRefresh(r *http.Request) string {
	ck, err := r.Cookie(c.withDefaults().Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// SetRefresh writes tok as an HttpOnly, SameSite=Strict cookie expiring with it.
func (c CookieConfig) SetRefresh(w http.ResponseWriter, tok jwtx.Token) {
	c = c.withDefaults()
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    tok.Raw,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  tok.ExpiresAt,
		MaxAge:   max(int(tok.ExpiresAt.Sub(c.Clock.Now()).Seconds()), 1),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefresh expires the refresh cookie.
func (c CookieConfig) ClearRefresh(w http.ResponseWriter) {
	c = c.withDefaults()
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
