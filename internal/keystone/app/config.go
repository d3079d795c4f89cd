package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/joho/godotenv"
)

// MinSecretBytes is the shortest HMAC secret accepted outside dev.
const MinSecretBytes = 32

type Config struct {
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	Port                int           // HTTP server port (default: 8080)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	LogFile             string        // Optional: tee logs into a daily rotated file
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	PublicBaseURL       string        // Base URL used in mailed links (default: http://localhost:8080)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseURL    string // DSN or SQLite file (default: keystone.db)

	Issuer          string        // Issuer claim for tokens (default: keystone)
	AccessSecret    string        // HMAC secret for access tokens
	RefreshSecret   string        // HMAC secret for refresh tokens, must differ from AccessSecret
	AccessTTL       time.Duration // Access token lifetime (default: 15m)
	RefreshTTL      time.Duration // Refresh token lifetime (default: 7d)
	RevocationCheck bool          // Check bearers against the stored fingerprint
	CookieSecure    bool          // Secure attribute on the refresh cookie (default: true outside dev)
	CookieDomain    string        // Optional: Domain attribute on the refresh cookie
	WSOrigins       []string      // Optional: extra origins allowed to open /graphql sockets

	PasswordPepper  string // Optional: pepper for password hashing; read from PepperFile when empty
	PepperFile      string // Path of the generated pepper (default: ./pepper)
	MaxFailedLogins int    // Consecutive failures before an account locks (default: 5)
	BootstrapToken  string // Optional: enables POST /v1/bootstrap

	MailDriver string // log or amqp (default: log)
	MailFrom   string // Product name shown in mail (default: Keystone)
	AMQPURL    string // Required when MailDriver is amqp
	MailQueue  string // Queue for outbound mail (default: keystone.mail)

	KafkaBrokers string // Optional: comma separated brokers for auth events
	KafkaTopic   string // Topic for auth events (default: keystone.auth-events)

	AnalyticsRetention   time.Duration // Request log retention (default: 30d)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	// RATELIMIT_{STRICT|MODERATE|LENIENT|PUBLIC}_{REQUESTS|WINDOW_SEC|BURST}
	RateLimits httpx.RateLimits
}

// LoadConfig reads the environment, after loading KEYSTONE_ENV_FILE (default
// .env) when that file exists. Variables already set win over the file.
func LoadConfig() (Config, error) {
	envFile := getEnvOrDefault("KEYSTONE_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	env := getEnvOrDefault("ENV", "dev")
	cfg := Config{
		Env:                 env,
		Port:                getEnvIntOrDefault("PORT", 8080),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:             os.Getenv("LOG_FILE"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		PublicBaseURL:       getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", "keystone.db"),

		Issuer:          getEnvOrDefault("AUTH_ISSUER", "keystone"),
		AccessSecret:    os.Getenv("AUTH_ACCESS_SECRET"),
		RefreshSecret:   os.Getenv("AUTH_REFRESH_SECRET"),
		AccessTTL:       getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      getEnvDurationOrDefault("AUTH_REFRESH_TTL", 7*24*time.Hour),
		RevocationCheck: getEnvBoolOrDefault("AUTH_REVOCATION_CHECK", false),
		CookieSecure:    getEnvBoolOrDefault("AUTH_COOKIE_SECURE", env != "dev"),
		CookieDomain:    os.Getenv("AUTH_COOKIE_DOMAIN"),
		WSOrigins:       getEnvList("WS_ALLOWED_ORIGINS"),

		PasswordPepper:  os.Getenv("PASSWORD_PEPPER"),
		PepperFile:      getEnvOrDefault("PEPPER_FILE", "pepper"),
		MaxFailedLogins: getEnvIntOrDefault("MAX_FAILED_LOGINS", 5),
		BootstrapToken:  os.Getenv("BOOTSTRAP_TOKEN"),

		MailDriver: getEnvOrDefault("MAIL_DRIVER", "log"),
		MailFrom:   getEnvOrDefault("MAIL_FROM", "Keystone"),
		AMQPURL:    os.Getenv("AMQP_URL"),
		MailQueue:  getEnvOrDefault("MAIL_QUEUE", "keystone.mail"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "keystone.auth-events"),

		AnalyticsRetention:   getEnvDurationOrDefault("ANALYTICS_RETENTION", 30*24*time.Hour),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	defaults := httpx.DefaultRateLimits()
	cfg.RateLimits = httpx.RateLimits{
		Strict:   getEnvRateLimit("STRICT", defaults.Strict),
		Moderate: getEnvRateLimit("MODERATE", defaults.Moderate),
		Lenient:  getEnvRateLimit("LENIENT", defaults.Lenient),
		Public:   getEnvRateLimit("PUBLIC", defaults.Public),
	}
	return cfg, nil
}

// IsDev reports whether the service runs in the dev environment.
func (c Config) IsDev() bool { return c.Env == "dev" }

// Validate checks settings that would otherwise fail at first use. Missing
// secrets are only an error outside dev; see ensureSecrets.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	switch c.MailDriver {
	case "log":
	case "amqp":
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required when MAIL_DRIVER=amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER must be log or amqp, got %q", c.MailDriver))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	} else if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("AUTH_ACCESS_TTL must be shorter than AUTH_REFRESH_TTL"))
	}
	if c.MaxFailedLogins < 1 {
		errs = append(errs, errors.New("MAX_FAILED_LOGINS must be at least 1"))
	}

	if !c.IsDev() {
		if len(c.AccessSecret) < MinSecretBytes {
			errs = append(errs, fmt.Errorf("AUTH_ACCESS_SECRET must be at least %d bytes", MinSecretBytes))
		}
		if len(c.RefreshSecret) < MinSecretBytes {
			errs = append(errs, fmt.Errorf("AUTH_REFRESH_SECRET must be at least %d bytes", MinSecretBytes))
		}
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must differ"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Whole days, e.g. "30d"
	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvRateLimit overrides def from RATELIMIT_<profile>_REQUESTS,
// _WINDOW_SEC and _BURST. Values that are not positive integers are ignored.
func getEnvRateLimit(profile string, def httpx.RateLimitConfig) httpx.RateLimitConfig {
	positive := func(key string, fallback int) int {
		if n := getEnvIntOrDefault("RATELIMIT_"+profile+"_"+key, fallback); n > 0 {
			return n
		}
		return fallback
	}
	return httpx.RateLimitConfig{
		RequestsPerWindow: positive("REQUESTS", def.RequestsPerWindow),
		Window:            time.Duration(positive("WINDOW_SEC", int(def.Window/time.Second))) * time.Second,
		Burst:             positive("BURST", def.Burst),
	}
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
