package session

import (
	"fmt"
	"time"

	"authd/cmd/security/password"
)

// Config holds the service-level knobs. Signing and hashing parameters live
// with the codec and the hasher.
type Config struct {
	// Policy is applied to plaintext passwords at registration.
	Policy password.Policy

	// TokenTTL overrides the codec's default lifetime when positive.
	TokenTTL time.Duration
}

// DefaultConfig returns the default registration policy and the codec's TTL.
func DefaultConfig() Config {
	return Config{Policy: password.DefaultConfig().Policy}
}

func (c Config) check() error {
	if c.Policy.MinLength < 1 {
		return fmt.Errorf("%w: password min length must be positive", ErrConfig)
	}
	if c.TokenTTL < 0 {
		return fmt.Errorf("%w: negative token ttl", ErrConfig)
	}
	return nil
}
