package app

import (
	"errors"
	"fmt"

	"authd/cmd/security/token"
)

// ValidateSecurityConfig refuses to start with a missing or weak signing
// secret or with hashing parameters outside safe bounds.
func ValidateSecurityConfig(cfg Config) error {
	if err := cfg.Token.Check(); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return errors.New("security policy: AUTHD_SECRET_KEY is missing")
		case errors.Is(err, token.ErrSecretTooShort):
			return fmt.Errorf("security policy: AUTHD_SECRET_KEY is too short (min %d bytes)", token.MinSecretBytes)
		default:
			return fmt.Errorf("security policy: %w", err)
		}
	}

	// Hash cost bounds are enforced by the same package that hashes.
	if err := cfg.Password.Check(); err != nil {
		return fmt.Errorf("security policy: %w", err)
	}
	return nil
}
