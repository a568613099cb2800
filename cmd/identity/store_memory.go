package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps accounts in process memory. It is meant for local
// development and tests; data is lost on restart.
//
// WithinTx holds an exclusive lock for the whole callback, so transactions
// never interleave. Writes are staged and applied only when fn succeeds.
type MemoryStore struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	nextID  int64
	byID    map[int64]Account
	byEmail map[string]int64
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Admin = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]Account),
		byEmail: make(map[string]int64),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if email == "" {
		return Account{}, invalid(op, "email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, notFound(op)
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (Account, error) {
	const op = "identity.FindByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return Account{}, notFound(op)
	}
	return a, nil
}

func (s *MemoryStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if err := checkCreate(op, in); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(op, in)
}

func (s *MemoryStore) insertLocked(op string, in CreateAccountInput) (Account, error) {
	if _, taken := s.byEmail[in.Email]; taken {
		return Account{}, emailTaken(op)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	a := Account{
		ID:           s.allocIDLocked(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		CreatedAt:    now,
	}
	s.byID[a.ID] = a
	s.byEmail[a.Email] = a.ID
	return a, nil
}

// allocIDLocked hands out ids like a sequence: ids of rolled-back
// transactions are not reused.
func (s *MemoryStore) allocIDLocked() int64 {
	s.nextID++
	return s.nextID
}

// WithinTx runs fn with exclusive access. Creates made through tx become
// visible to other callers only after fn returns nil.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Accounts) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range tx.staged {
		// Direct Create calls may have raced with the transaction.
		if _, taken := s.byEmail[a.Email]; taken {
			return emailTaken("identity.WithinTx")
		}
	}
	for _, a := range tx.staged {
		s.byID[a.ID] = a
		s.byEmail[a.Email] = a.ID
	}
	return nil
}

// SetActive flips the activation flag.
func (s *MemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	const op = "identity.SetActive"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	a.IsActive = active
	s.byID[id] = a
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// memoryTx reads through to the store and stages creates.
type memoryTx struct {
	store  *MemoryStore
	staged []Account
}

func (t *memoryTx) FindByEmail(ctx context.Context, email string) (Account, error) {
	for _, a := range t.staged {
		if a.Email == email {
			return a, nil
		}
	}
	return t.store.FindByEmail(ctx, email)
}

func (t *memoryTx) FindByID(ctx context.Context, id int64) (Account, error) {
	for _, a := range t.staged {
		if a.ID == id {
			return a, nil
		}
	}
	return t.store.FindByID(ctx, id)
}

func (t *memoryTx) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if err := checkCreate(op, in); err != nil {
		return Account{}, err
	}
	if _, err := t.FindByEmail(ctx, in.Email); err == nil {
		return Account{}, emailTaken(op)
	} else if !IsNotFound(err) {
		return Account{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	t.store.mu.Lock()
	id := t.store.allocIDLocked()
	t.store.mu.Unlock()

	a := Account{
		ID:           id,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		CreatedAt:    now,
	}
	t.staged = append(t.staged, a)
	return a, nil
}
