package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/jonboulle/clockwork"
)

// InitCodec builds the HS256 token codec from the configured secrets.
//
// Secrets:
//   - Outside dev both secrets are required (Validate enforces the length).
//   - In dev a missing secret is generated on startup and kept only in
//     memory. All existing tokens become invalid when the service restarts.
func InitCodec(cfg Config, clock clockwork.Clock, logger *slog.Logger) (*jwtx.Codec, error) {
	access, err := secretOrGenerate(cfg, "AUTH_ACCESS_SECRET", cfg.AccessSecret, logger)
	if err != nil {
		return nil, err
	}
	refresh, err := secretOrGenerate(cfg, "AUTH_REFRESH_SECRET", cfg.RefreshSecret, logger)
	if err != nil {
		return nil, err
	}

	codec, err := jwtx.NewCodec(jwtx.Config{
		Issuer:        cfg.Issuer,
		AccessSecret:  access,
		RefreshSecret: refresh,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Clock:         clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	logger.Info("token codec ready",
		"issuer", cfg.Issuer,
		"access_ttl", codec.TTL(jwtx.PurposeAccess),
		"refresh_ttl", codec.TTL(jwtx.PurposeRefresh),
	)
	return codec, nil
}

func secretOrGenerate(cfg Config, name, value string, logger *slog.Logger) ([]byte, error) {
	if value != "" {
		if len(value) < MinSecretBytes {
			logger.Warn("token secret is shorter than recommended", "name", name, "min_bytes", MinSecretBytes)
		}
		return []byte(value), nil
	}
	if !cfg.IsDev() {
		return nil, fmt.Errorf("%s is required outside dev", name)
	}

	generated, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", name, err)
	}
	logger.Warn("generated ephemeral token secret, sessions will not survive a restart", "name", name)
	return []byte(generated), nil
}
