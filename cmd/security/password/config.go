package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Scheme names a hashing algorithm for new hashes.
type Scheme string

const (
	SchemeBcrypt   Scheme = "bcrypt"
	SchemeArgon2id Scheme = "argon2id"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB"`
	Iterations  uint32 `env:"ITERATIONS"`
	Parallelism uint8  `env:"PARALLELISM"`
	SaltLength  uint32 `env:"SALT_LEN"`
	KeyLength   uint32 `env:"KEY_LEN"`
}

// Policy controls which plaintext passwords are acceptable at registration.
type Policy struct {
	// MinLength counts characters (runes).
	MinLength int `env:"MIN_LEN"`
	// MaxBytes caps the UTF-8 length; bcrypt ignores input past 72 bytes.
	MaxBytes     int  `env:"MAX_BYTES"`
	RequireUpper bool `env:"REQUIRE_UPPER"`
	RequireLower bool `env:"REQUIRE_LOWER"`
	RequireDigit bool `env:"REQUIRE_DIGIT"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Scheme     Scheme         `env:"PASSWORD_SCHEME"`
	BcryptCost int            `env:"BCRYPT_COST"`
	Argon2     Argon2idParams `envPrefix:"ARGON2_"`
	Policy     Policy         `envPrefix:"PASSWORD_"`
}

// DefaultConfig returns bcrypt at cost 10 and the registration policy:
// at least 8 characters with an uppercase letter, a lowercase letter and a digit.
func DefaultConfig() Config {
	// Clamp to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Scheme:     SchemeBcrypt,
		BcryptCost: bcrypt.DefaultCost,
		Argon2: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:    8,
			MaxBytes:     72,
			RequireUpper: true,
			RequireLower: true,
			RequireDigit: true,
		},
	}
}

// FromEnv overlays AUTHD_-prefixed environment variables on DefaultConfig.
//
// Env surface:
//   - AUTHD_PASSWORD_SCHEME (bcrypt|argon2id)
//   - AUTHD_BCRYPT_COST
//   - AUTHD_ARGON2_MEMORY_KIB, _ITERATIONS, _PARALLELISM, _SALT_LEN, _KEY_LEN
//   - AUTHD_PASSWORD_MIN_LEN, _MAX_BYTES, _REQUIRE_UPPER, _REQUIRE_LOWER, _REQUIRE_DIGIT
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTHD_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check reports configuration values outside safe bounds.
func (c Config) Check() error {
	switch c.Scheme {
	case SchemeBcrypt, SchemeArgon2id:
	default:
		return fmt.Errorf("%w: unknown scheme %q", ErrInvalidConfig, c.Scheme)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > 16 {
		return fmt.Errorf("%w: bcrypt cost %d out of range [%d..16]", ErrInvalidConfig, c.BcryptCost, bcrypt.MinCost)
	}

	p := c.Argon2
	if p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024 {
		return fmt.Errorf("%w: argon2 memory out of range [8192..1048576]", ErrInvalidConfig)
	}
	if p.Iterations < 1 || p.Iterations > 20 {
		return fmt.Errorf("%w: argon2 iterations out of range [1..20]", ErrInvalidConfig)
	}
	if p.Parallelism < 1 || p.Parallelism > 64 {
		return fmt.Errorf("%w: argon2 parallelism out of range [1..64]", ErrInvalidConfig)
	}
	if p.SaltLength < 8 || p.SaltLength > 64 {
		return fmt.Errorf("%w: argon2 salt length out of range [8..64]", ErrInvalidConfig)
	}
	if p.KeyLength < 16 || p.KeyLength > 64 {
		return fmt.Errorf("%w: argon2 key length out of range [16..64]", ErrInvalidConfig)
	}

	if c.Policy.MinLength < 1 {
		return fmt.Errorf("%w: min_len must be positive", ErrInvalidConfig)
	}
	if c.Policy.MaxBytes < c.Policy.MinLength {
		return fmt.Errorf(
			"%w: min_len(%d) > max_bytes(%d)",
			ErrInvalidConfig,
			c.Policy.MinLength,
			c.Policy.MaxBytes,
		)
	}
	if c.Scheme == SchemeBcrypt && c.Policy.MaxBytes > 72 {
		return fmt.Errorf("%w: bcrypt accepts at most 72 bytes", ErrInvalidConfig)
	}
	return nil
}
