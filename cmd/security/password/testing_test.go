package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fastConfig keeps hashing cheap in tests.
func fastConfig(t testing.TB, scheme Scheme) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Scheme = scheme
	cfg.BcryptCost = bcrypt.MinCost
	cfg.Argon2.MemoryKiB = 8 * 1024
	cfg.Argon2.Iterations = 1
	cfg.Argon2.Parallelism = 1
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}
