package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"authd/cmd/identity"
	"authd/cmd/security/password"
	"authd/cmd/security/token"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingHasher records Verify calls.
type countingHasher struct {
	password.Hasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(encodedHash, plain string) bool {
	h.verifies.Add(1)
	return h.Hasher.Verify(encodedHash, plain)
}

type fixture struct {
	svc     *Service
	store   *identity.MemoryStore
	codec   *token.Codec
	clock   *fakeClock
	hasher  *countingHasher
	metrics *Metrics
	spans   *tracetest.SpanRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pcfg := password.DefaultConfig()
	pcfg.BcryptCost = bcrypt.MinCost
	ph, err := password.New(pcfg)
	require.NoError(t, err)

	tcfg := token.DefaultConfig()
	tcfg.Secret = "0123456789abcdef0123456789abcdef"
	codec, err := token.NewCodec(tcfg)
	require.NoError(t, err)

	f := &fixture{
		store:   identity.NewMemoryStore(),
		codec:   codec,
		clock:   &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		hasher:  &countingHasher{Hasher: ph},
		metrics: NewMetrics(prometheus.NewRegistry()),
		spans:   tracetest.NewSpanRecorder(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))

	f.svc, err = NewService(DefaultConfig(), f.store, f.hasher, codec,
		WithClock(f.clock.Now),
		WithMetrics(f.metrics),
		WithTracer(tp.Tracer("test")),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) register(t *testing.T, email, pw string) identity.PublicAccount {
	t.Helper()
	acct, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: pw})
	require.NoError(t, err)
	return acct
}

func TestRegisterLoginResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.svc.Register(ctx, RegisterInput{
		Email:     "a@x.com",
		Password:  "Secret123",
		FirstName: "Ada",
	})
	require.NoError(t, err)
	assert.Positive(t, acct.ID)
	assert.Equal(t, "a@x.com", acct.Email)
	assert.Equal(t, "Ada", acct.FirstName)
	assert.True(t, acct.IsActive)

	stored, err := f.store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", stored.PasswordHash)

	tok, err := f.svc.Authenticate(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), tok.ExpiresAt)

	id, err := f.svc.ResolveToken(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id)

	me, err := f.svc.CurrentAccount(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, me.ID)
	assert.Equal(t, "Ada", me.FirstName)
}

func TestRegister_WeakPasswordTouchesNoStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, pw := range []string{"short", "secret123", "SECRET123", "SecretSecret"} {
		_, err := f.svc.Register(ctx, RegisterInput{Email: "b@x.com", Password: pw})
		require.ErrorIs(t, err, ErrWeakPassword, "password %q", pw)
		assert.Equal(t, "weak_password", Code(err))
	}

	_, err := f.store.FindByEmail(ctx, "b@x.com")
	assert.True(t, identity.IsNotFound(err))
}

func TestRegister_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "nope", Password: "Secret123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Register(ctx, RegisterInput{
		Email:     "a@x.com",
		Password:  "Secret123",
		FirstName: strings.Repeat("x", identity.MaxNameRunes+1),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_TrimsButKeepsCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct := f.register(t, "  Ada@X.com ", "Secret123")
	assert.Equal(t, "Ada@X.com", acct.Email)

	_, err := f.svc.Authenticate(ctx, "ada@x.com", "Secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Authenticate(ctx, "Ada@X.com", "Secret123")
	assert.NoError(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.register(t, "a@x.com", "Secret123")

	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Other1234"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, msgDuplicateEmail, Message(err))

	// The first account is untouched.
	_, err = f.svc.Authenticate(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)
	got, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dups      atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(ctx, RegisterInput{Email: "race@x.com", Password: "Secret123"})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrDuplicateEmail):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), dups.Load())
}

// precheckBlindStore hides existing rows from the pre-check so the unique
// constraint has to catch the duplicate.
type precheckBlindStore struct {
	*identity.MemoryStore
}

type blindTx struct{ identity.Accounts }

func (blindTx) FindByEmail(ctx context.Context, email string) (identity.Account, error) {
	return identity.Account{}, identity.NotFoundError{Op: "test"}
}

func (s precheckBlindStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx identity.Accounts) error) error {
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, tx identity.Accounts) error {
		return fn(ctx, blindTx{tx})
	})
}

func TestRegister_ConstraintViolationMapsToDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret123")

	svc, err := NewService(DefaultConfig(), precheckBlindStore{f.store}, f.hasher, f.codec)
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Secret123"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

// commitConflictStore runs the callback and then fails the commit the way
// MemoryStore does when a direct Create won the race.
type commitConflictStore struct {
	*identity.MemoryStore
}

func (s commitConflictStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx identity.Accounts) error) error {
	if err := fn(ctx, s.MemoryStore); err != nil {
		return err
	}
	return identity.ConflictError{Op: "identity.WithinTx", Field: "email"}
}

func TestRegister_CommitConflictMapsToDuplicate(t *testing.T) {
	f := newFixture(t)

	svc, err := NewService(DefaultConfig(), commitConflictStore{f.store}, f.hasher, f.codec)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "b@x.com", Password: "Secret123"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.True(t, IsRejection(err))
}

// txTrackingStore flags the span of each WithinTx call.
type txTrackingStore struct {
	*identity.MemoryStore
	open *atomic.Bool
}

func (s txTrackingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx identity.Accounts) error) error {
	s.open.Store(true)
	defer s.open.Store(false)
	return s.MemoryStore.WithinTx(ctx, fn)
}

// txAwareHasher records whether Hash ran while a transaction was open.
type txAwareHasher struct {
	password.Hasher
	open       *atomic.Bool
	hashedInTx atomic.Bool
}

func (h *txAwareHasher) Hash(plain string) (string, error) {
	if h.open.Load() {
		h.hashedInTx.Store(true)
	}
	return h.Hasher.Hash(plain)
}

func TestRegister_HashesOutsideTransaction(t *testing.T) {
	f := newFixture(t)
	open := &atomic.Bool{}
	h := &txAwareHasher{Hasher: f.hasher, open: open}

	svc, err := NewService(DefaultConfig(), txTrackingStore{MemoryStore: f.store, open: open}, h, f.codec)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "c@x.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.False(t, h.hashedInTx.Load())
}

func TestAuthenticate_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret123")

	before := f.hasher.verifies.Load()
	_, errUnknown := f.svc.Authenticate(ctx, "nobody@x.com", "Secret123")
	assert.Equal(t, before+1, f.hasher.verifies.Load(), "unknown email must still verify a hash")

	_, errWrong := f.svc.Authenticate(ctx, "a@x.com", "Wrong1234")

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, Code(errUnknown), Code(errWrong))

	_, err := f.svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct := f.register(t, "b@x.com", "Secret123")
	tok, err := f.svc.Authenticate(ctx, "b@x.com", "Secret123")
	require.NoError(t, err)

	require.NoError(t, f.store.SetActive(ctx, acct.ID, false))

	_, err = f.svc.Authenticate(ctx, "b@x.com", "Secret123")
	require.ErrorIs(t, err, ErrAccountInactive)

	// Wrong password on an inactive account does not reveal the state.
	_, err = f.svc.Authenticate(ctx, "b@x.com", "Wrong1234")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// A still-unexpired token stops working.
	_, err = f.svc.ResolveToken(ctx, tok.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, f.store.SetActive(ctx, acct.ID, true))
	id, err := f.svc.ResolveToken(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id)
}

func TestResolveToken_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct := f.register(t, "a@x.com", "Secret123")
	tok, err := f.svc.Authenticate(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)

	orphan, err := f.codec.Issue(acct.ID+100, f.clock.Now(), 0)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":           "",
		"garbage":         "abc.def.ghi",
		"unknown account": orphan.Token,
	} {
		_, err := f.svc.ResolveToken(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
		assert.Equal(t, msgInvalidToken, Message(err), name)
	}

	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.ResolveToken(ctx, tok.AccessToken)
	require.NoError(t, err, "exp == now is still valid")

	f.clock.Advance(time.Second)
	_, err = f.svc.ResolveToken(ctx, tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// failingStore simulates a storage outage.
type failingStore struct{ identity.Store }

var errOutage = errors.New("connection reset")

func (failingStore) FindByEmail(context.Context, string) (identity.Account, error) {
	return identity.Account{}, errOutage
}

func (failingStore) FindByID(context.Context, int64) (identity.Account, error) {
	return identity.Account{}, errOutage
}

func (failingStore) WithinTx(context.Context, func(context.Context, identity.Accounts) error) error {
	return errOutage
}

func TestStoreFailuresAreNotRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok, err := f.codec.Issue(1, f.clock.Now(), 0)
	require.NoError(t, err)

	svc, err := NewService(DefaultConfig(), failingStore{}, f.hasher, f.codec, WithClock(f.clock.Now))
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Secret123"})
	require.ErrorIs(t, err, errOutage)
	assert.False(t, IsRejection(err))
	assert.Equal(t, "server_error", Code(err))

	_, err = svc.Authenticate(ctx, "a@x.com", "Secret123")
	require.ErrorIs(t, err, errOutage)
	assert.False(t, IsRejection(err))

	_, err = svc.ResolveToken(ctx, tok.Token)
	require.ErrorIs(t, err, errOutage)
	assert.False(t, IsRejection(err))
	assert.Equal(t, "internal error", Message(err))
}

func TestMetricsAndSpans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123")
	_, _ = f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Secret123"})
	tok, err := f.svc.Authenticate(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)
	_, _ = f.svc.Authenticate(ctx, "a@x.com", "Wrong1234")
	_, _ = f.svc.ResolveToken(ctx, tok.AccessToken)
	_, _ = f.svc.ResolveToken(ctx, "bogus")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.register.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.register.WithLabelValues("duplicate_email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.login.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.login.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.tokenChecks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.tokenChecks.WithLabelValues("invalid_token")))

	names := map[string]int{}
	for _, s := range f.spans.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 2, names["session.Register"])
	assert.Equal(t, 2, names["session.Authenticate"])
	assert.Equal(t, 2, names["session.ResolveToken"])
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(DefaultConfig(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrConfig)
}
