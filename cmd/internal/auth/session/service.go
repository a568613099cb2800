package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authd/cmd/identity"
	"authd/cmd/security/password"
	"authd/cmd/security/token"
)

// Tokens mints and validates bearer tokens. *token.Codec implements it.
type Tokens interface {
	Issue(subject int64, now time.Time, ttl time.Duration) (token.Issued, error)
	Validate(raw string, now time.Time) (int64, error)
}

// RegisterInput is a registration request. Email is trimmed; case is kept.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AccessToken is the login result.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service implements registration, authentication and token resolution.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	cfg     Config
	store   identity.Store
	hasher  password.Hasher
	tokens  Tokens
	log     *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time

	// dummyHash is verified when the email is unknown so that both failure
	// paths cost one hash verification.
	dummyHash string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock sets the time source used for token issue and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the service. All collaborators are required.
func NewService(cfg Config, store identity.Store, hasher password.Hasher, tokens Tokens, opts ...Option) (*Service, error) {
	if store == nil || hasher == nil || tokens == nil {
		return nil, fmt.Errorf("%w: store, hasher and tokens are required", ErrConfig)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		hasher: hasher,
		tokens: tokens,
		log:    slog.Default(),
		tracer: otel.Tracer("authd/session"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := randomSecret()
	if err != nil {
		return nil, err
	}
	if s.dummyHash, err = hasher.Hash(dummy); err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}
	return s, nil
}

// Register creates an active account.
//
// Input and password policy are checked before any storage access. The email
// pre-check and the store's unique constraint both map to ErrDuplicateEmail;
// the constraint decides races.
func (s *Service) Register(ctx context.Context, in RegisterInput) (out identity.PublicAccount, err error) {
	ctx, span := s.tracer.Start(ctx, "session.Register")
	defer func() {
		s.metrics.observeRegister(err)
		endSpan(span, err)
	}()

	email := identity.CleanEmail(in.Email)
	if err := identity.ValidateEmail(email); err != nil {
		return identity.PublicAccount{}, reject(ErrInvalidInput, "email is not a valid address")
	}
	if err := identity.ValidateName("first_name", in.FirstName); err != nil {
		return identity.PublicAccount{}, reject(ErrInvalidInput, "first_name is too long")
	}
	if err := identity.ValidateName("last_name", in.LastName); err != nil {
		return identity.PublicAccount{}, reject(ErrInvalidInput, "last_name is too long")
	}
	if err := s.cfg.Policy.Validate(in.Password); err != nil {
		return identity.PublicAccount{}, reject(ErrWeakPassword, err.Error())
	}

	// No transaction is open while hashing.
	hash, err := s.hash(in.Password)
	if err != nil {
		s.log.Error("auth.register.fail", "err", err)
		return identity.PublicAccount{}, err
	}

	var created identity.Account
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx identity.Accounts) error {
		_, err := tx.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return reject(ErrDuplicateEmail, msgDuplicateEmail)
		case !identity.IsNotFound(err):
			return fmt.Errorf("session.Register: lookup: %w", err)
		}

		created, err = tx.Create(ctx, identity.CreateAccountInput{
			Email:        email,
			PasswordHash: hash,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Now:          s.now(),
		})
		if err != nil {
			if identity.IsConflict(err) {
				return reject(ErrDuplicateEmail, msgDuplicateEmail)
			}
			return fmt.Errorf("session.Register: create: %w", err)
		}
		return nil
	})
	if identity.IsConflict(err) {
		err = reject(ErrDuplicateEmail, msgDuplicateEmail)
	}
	if err != nil {
		if IsRejection(err) {
			s.log.Info("auth.register.reject", "reason", Code(err))
		} else {
			s.log.Error("auth.register.fail", "err", err)
		}
		return identity.PublicAccount{}, err
	}

	s.log.Info("auth.register.ok", "account_id", created.ID)
	span.SetAttributes(attribute.Int64("account.id", created.ID))
	return created.Public(), nil
}

// Authenticate checks email and password and issues a bearer token.
// Unknown email and wrong password are indistinguishable to the caller.
// An inactive account is reported only after the password matched.
func (s *Service) Authenticate(ctx context.Context, email, plain string) (out AccessToken, err error) {
	ctx, span := s.tracer.Start(ctx, "session.Authenticate")
	defer func() {
		s.metrics.observeLogin(err)
		endSpan(span, err)
	}()

	acct, err := s.store.FindByEmail(ctx, identity.CleanEmail(email))
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			s.verify(s.dummyHash, plain)
			s.log.Info("auth.login.fail", "reason", "unknown_email")
			return AccessToken{}, reject(ErrInvalidCredentials, msgInvalidCredentials)
		}
		s.log.Error("auth.login.fail", "err", err)
		return AccessToken{}, fmt.Errorf("session.Authenticate: lookup: %w", err)
	}

	if !s.verify(acct.PasswordHash, plain) {
		s.log.Info("auth.login.fail", "reason", "bad_password", "account_id", acct.ID)
		return AccessToken{}, reject(ErrInvalidCredentials, msgInvalidCredentials)
	}
	if !acct.IsActive {
		s.log.Info("auth.login.fail", "reason", "inactive", "account_id", acct.ID)
		return AccessToken{}, reject(ErrAccountInactive, msgAccountInactive)
	}

	issued, err := s.tokens.Issue(acct.ID, s.now(), s.cfg.TokenTTL)
	if err != nil {
		s.log.Error("auth.login.fail", "err", err, "account_id", acct.ID)
		return AccessToken{}, fmt.Errorf("session.Authenticate: issue: %w", err)
	}

	s.log.Info("auth.login.ok", "account_id", acct.ID, "jti", issued.ID)
	span.SetAttributes(attribute.Int64("account.id", acct.ID))
	return AccessToken{
		AccessToken: issued.Token,
		TokenType:   token.TypeBearer,
		ExpiresAt:   issued.ExpiresAt,
	}, nil
}

// ResolveToken returns the account id behind a bearer token after checking
// that the account still exists and is active.
func (s *Service) ResolveToken(ctx context.Context, raw string) (int64, error) {
	acct, err := s.resolve(ctx, "session.ResolveToken", raw)
	if err != nil {
		return 0, err
	}
	return acct.ID, nil
}

// CurrentAccount is ResolveToken returning the caller-safe profile.
func (s *Service) CurrentAccount(ctx context.Context, raw string) (identity.PublicAccount, error) {
	acct, err := s.resolve(ctx, "session.CurrentAccount", raw)
	if err != nil {
		return identity.PublicAccount{}, err
	}
	return acct.Public(), nil
}

func (s *Service) resolve(ctx context.Context, op, raw string) (acct identity.Account, err error) {
	ctx, span := s.tracer.Start(ctx, op)
	defer func() {
		s.metrics.observeToken(err)
		endSpan(span, err)
	}()

	id, err := s.tokens.Validate(raw, s.now())
	if err != nil {
		reason := token.ReasonOf(err)
		if reason == "" {
			reason = "codec"
		}
		s.log.Debug("auth.token.reject", "reason", reason)
		return identity.Account{}, reject(ErrInvalidToken, msgInvalidToken)
	}

	acct, err = s.store.FindByID(ctx, id)
	if err != nil {
		if identity.IsNotFound(err) {
			s.log.Info("auth.token.reject", "reason", "unknown_account", "account_id", id)
			return identity.Account{}, reject(ErrInvalidToken, msgInvalidToken)
		}
		s.log.Error("auth.token.fail", "err", err, "account_id", id)
		return identity.Account{}, fmt.Errorf("%s: lookup: %w", op, err)
	}
	if !acct.IsActive {
		s.log.Info("auth.token.reject", "reason", "inactive", "account_id", id)
		return identity.Account{}, reject(ErrInvalidToken, msgInvalidToken)
	}

	span.SetAttributes(attribute.Int64("account.id", acct.ID))
	return acct, nil
}

func (s *Service) hash(plain string) (string, error) {
	defer s.metrics.observeHash("hash", time.Now())
	h, err := s.hasher.Hash(plain)
	if err != nil {
		return "", fmt.Errorf("session: hash: %w", err)
	}
	return h, nil
}

func (s *Service) verify(encodedHash, plain string) bool {
	defer s.metrics.observeHash("verify", time.Now())
	return s.hasher.Verify(encodedHash, plain)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		if IsRejection(err) {
			span.SetAttributes(attribute.String("auth.rejection", Code(err)))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal")
		}
	}
	span.End()
}

func randomSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", errors.Join(ErrConfig, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
