package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// RateLimitConfig is one token bucket: RequestsPerWindow refill over Window,
// with up to Burst available at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c RateLimitConfig) limit() rate.Limit {
	if c.Window <= 0 || c.RequestsPerWindow <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// RateLimits are the profiles routes pick from.
type RateLimits struct {
	Strict   RateLimitConfig // credentials: login, register, password reset, bootstrap
	Moderate RateLimitConfig // refresh, logout and account mutations
	Lenient  RateLimitConfig // GraphQL and authenticated reads
	Public   RateLimitConfig // health probes
}

// DefaultRateLimits returns the built-in profiles.
func DefaultRateLimits() RateLimits {
	perMinute := func(n int) RateLimitConfig {
		return RateLimitConfig{RequestsPerWindow: n, Window: time.Minute, Burst: n}
	}
	return RateLimits{
		Strict:   perMinute(5),
		Moderate: perMinute(20),
		Lenient:  perMinute(100),
		Public:   perMinute(1000),
	}
}

// KeyExtractor returns the bucket key for a request. An empty key exempts
// the request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor returns the client address, preferring the first
// X-Forwarded-For hop and then X-Real-IP.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor keys authenticated requests by user.
func UserIDKeyExtractor(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return "user:" + p.UserID
	}
	return ""
}

// JSONFieldKeyExtractor keys a request by a string field of its JSON body,
// lower-cased. The body is restored for the handler. Bodies that are not a
// JSON object, or lack the field, yield no key.
func JSONFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if json.Unmarshal(body, &fields) != nil {
			return ""
		}
		var v string
		if json.Unmarshal(fields[field], &v) != nil {
			return ""
		}
		if v = strings.ToLower(strings.TrimSpace(v)); v == "" {
			return ""
		}
		return field + ":" + v
	}
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// idleSweepEvery bounds how often idle buckets are dropped.
const idleSweepEvery = 5 * time.Minute

// buckets holds one limiter per key. Buckets that have refilled completely
// are idle and dropped on the next sweep.
type buckets struct {
	cfg   RateLimitConfig
	clock clockwork.Clock

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastSweep time.Time
}

func newBuckets(cfg RateLimitConfig, clock clockwork.Clock) *buckets {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &buckets{cfg: cfg, clock: clock, limiters: make(map[string]*rate.Limiter), lastSweep: clock.Now()}
}

// take spends one token for key. When none is left it reports how long
// until the next one.
func (b *buckets) take(key string) (time.Duration, bool) {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) >= idleSweepEvery {
		for k, l := range b.limiters {
			if l.TokensAt(now) >= float64(b.cfg.Burst) {
				delete(b.limiters, k)
			}
		}
		b.lastSweep = now
	}

	l, ok := b.limiters[key]
	if !ok {
		l = rate.NewLimiter(b.cfg.limit(), b.cfg.Burst)
		b.limiters[key] = l
	}
	if l.AllowN(now, 1) {
		return 0, true
	}

	r := l.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return wait, false
}

// RateLimitMiddleware rejects requests beyond cfg per key with 429 and a
// Retry-After header. clock may be nil.
func RateLimitMiddleware(cfg RateLimitConfig, key KeyExtractor, clock clockwork.Clock) Middleware {
	b := newBuckets(cfg, clock)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			k := key(r)
			if k == "" {
				log.Warn("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			wait, ok := b.take(k)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(wait.Round(time.Second)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			log.Warn("rate limit exceeded",
				slog.String("key", k),
				slog.String("endpoint", r.URL.Path),
				slog.Int("retry_after", retryAfter),
			)
			WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests, try again later")
		})
	}
}

// RateLimitByIP limits by client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor, nil)
}

// RateLimitByUser limits by authenticated user and address, or address alone
// for anonymous callers.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", UserIDKeyExtractor, IPKeyExtractor), nil)
}

// RateLimitByIPAndJSONField limits by address plus one JSON body field, such
// as the email of a login attempt, so guessing against one account is capped
// separately from the address's overall budget.
func RateLimitByIPAndJSONField(cfg RateLimitConfig, field string) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", IPKeyExtractor, JSONFieldKeyExtractor(field)), nil)
}
