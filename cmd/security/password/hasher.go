package password

import (
	"fmt"
	"strings"
)

// Hasher produces and checks opaque password hashes.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(encodedHash, plain string) bool
}

// Service is the configured Hasher. It hashes with the configured scheme
// and verifies hashes of any supported scheme.
// It is safe for concurrent use.
type Service struct {
	cfg Config
}

var _ Hasher = (*Service)(nil)

// New returns a Service for cfg.
func New(cfg Config) (*Service, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg}, nil
}

// Policy returns the configured registration policy.
func (s *Service) Policy() Policy { return s.cfg.Policy }

// Scheme returns the scheme used for new hashes.
func (s *Service) Scheme() Scheme { return s.cfg.Scheme }

// Hash hashes plain with a fresh random salt. It does not apply the policy.
func (s *Service) Hash(plain string) (string, error) {
	switch s.cfg.Scheme {
	case SchemeArgon2id:
		return hashArgon2id(plain, s.cfg.Argon2)
	default:
		return hashBcrypt(plain, s.cfg.BcryptCost)
	}
}

// Verify reports whether plain matches encodedHash.
// Mismatch and malformed hashes both yield false.
func (s *Service) Verify(encodedHash, plain string) bool {
	switch schemeOf(encodedHash) {
	case SchemeBcrypt:
		return verifyBcrypt(encodedHash, plain)
	case SchemeArgon2id:
		ok, err := verifyArgon2id(encodedHash, plain, s.cfg.Argon2)
		return err == nil && ok
	default:
		return false
	}
}

// NeedsRehash reports whether encodedHash was produced by another scheme
// or with parameters that differ from the current configuration.
func (s *Service) NeedsRehash(encodedHash string) bool {
	scheme := schemeOf(encodedHash)
	if scheme != s.cfg.Scheme {
		return true
	}
	switch scheme {
	case SchemeBcrypt:
		cost, err := bcryptCost(encodedHash)
		return err != nil || cost != s.cfg.BcryptCost
	case SchemeArgon2id:
		params, _, _, err := decodeArgon2id(encodedHash)
		if err != nil {
			return true
		}
		want := s.cfg.Argon2
		return params.MemoryKiB != want.MemoryKiB ||
			params.Iterations != want.Iterations ||
			params.Parallelism != want.Parallelism ||
			params.KeyLength != want.KeyLength
	}
	return true
}

// String is safe to log.
func (s *Service) String() string {
	if s.cfg.Scheme == SchemeArgon2id {
		p := s.cfg.Argon2
		return fmt.Sprintf("argon2id(m=%d,t=%d,p=%d)", p.MemoryKiB, p.Iterations, p.Parallelism)
	}
	return fmt.Sprintf("bcrypt(cost=%d)", s.cfg.BcryptCost)
}

func schemeOf(encodedHash string) Scheme {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return SchemeBcrypt
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return SchemeArgon2id
	default:
		return ""
	}
}
