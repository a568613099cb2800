package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TypeBearer is the token_type reported to clients.
const TypeBearer = "bearer"

// maxTokenBytes bounds the work done on untrusted input.
const maxTokenBytes = 8 << 10

// Issued is a freshly minted token and its claim times.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec mints and validates tokens. It is safe for concurrent use.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
}

// NewCodec returns a Codec for cfg.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	method, err := hmacMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	return &Codec{
		secret: []byte(cfg.Secret),
		method: method,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		// exp, sub and iss are checked by Validate so that exp == now stays valid.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL returns the default lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for subject valid from now until now+ttl.
// A non-positive ttl selects the configured default. Claim times are
// encoded with jwt.TimePrecision; Issued reports the unrounded times.
func (c *Codec) Issue(subject int64, now time.Time, ttl time.Duration) (Issued, error) {
	if subject <= 0 {
		return Issued{}, fmt.Errorf("token: subject must be positive")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subject, 10),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}

	return Issued{
		Token:     signed,
		ID:        claims.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks signature, algorithm, structure, expiry and issuer and
// returns the subject. A token whose exp equals now is still valid; now
// is truncated to the claim precision before the comparison.
// Every failure is a *ValidationError wrapping ErrInvalidToken.
func (c *Codec) Validate(raw string, now time.Time) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTokenBytes {
		return 0, reject(ReasonMalformed, nil)
	}

	var claims jwt.RegisteredClaims
	if _, err := c.parser.ParseWithClaims(raw, &claims, c.key); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return 0, reject(ReasonMalformed, err)
		}
		return 0, reject(ReasonSignature, err)
	}

	if claims.ExpiresAt == nil {
		return 0, reject(ReasonMalformed, errors.New("missing exp"))
	}
	if now.Truncate(jwt.TimePrecision).After(claims.ExpiresAt.Time) {
		return 0, reject(ReasonExpired, nil)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return 0, reject(ReasonIssuer, nil)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, reject(ReasonSubject, err)
	}
	return id, nil
}

func (c *Codec) key(t *jwt.Token) (any, error) {
	if t.Method.Alg() != c.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
	}
	return c.secret, nil
}

func hmacMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	m, ok := jwt.GetSigningMethod(strings.ToUpper(strings.TrimSpace(alg))).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	return m, nil
}
