package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSecretBytes is the shortest accepted signing secret.
const MinSecretBytes = 32

// Config controls token signing.
type Config struct {
	// #nosec G101 -- field holds a runtime secret, not a literal.
	Secret    string        `env:"SECRET_KEY,unset"`
	Algorithm string        `env:"ALGORITHM"`
	TTL       time.Duration `env:"TOKEN_TTL"`
	Issuer    string        `env:"TOKEN_ISSUER"`
}

// DefaultConfig returns HS256 with a 24h lifetime. Secret is left empty.
func DefaultConfig() Config {
	return Config{
		Algorithm: "HS256",
		TTL:       24 * time.Hour,
		Issuer:    "authd",
	}
}

// FromEnv overlays AUTHD_SECRET_KEY, AUTHD_ALGORITHM, AUTHD_TOKEN_TTL and
// AUTHD_TOKEN_ISSUER on DefaultConfig. AUTHD_SECRET_KEY is removed from the
// process environment once read.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTHD_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates the secret length, algorithm and TTL.
func (c Config) Check() error {
	if c.Secret == "" {
		return ErrSecretMissing
	}
	if len(c.Secret) < MinSecretBytes {
		return fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretBytes)
	}
	if _, err := hmacMethod(c.Algorithm); err != nil {
		return err
	}
	if c.TTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	return nil
}

// String omits the secret.
func (c Config) String() string {
	return fmt.Sprintf("alg=%s ttl=%s iss=%q", c.Algorithm, c.TTL, c.Issuer)
}
