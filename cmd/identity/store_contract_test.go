package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminStore interface {
	Store
	Admin
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testInput(email string) CreateAccountInput {
	return CreateAccountInput{
		Email:        email,
		PasswordHash: "$2a$04$hashhashhashhashhashhu",
		Now:          testNow,
	}
}

// runStoreContract exercises behavior every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) adminStore) {
	t.Run("CreateAndFind", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		in := testInput("a@x.com")
		in.FirstName = "Ada"
		created, err := s.Create(ctx, in)
		require.NoError(t, err)
		assert.Positive(t, created.ID)
		assert.True(t, created.IsActive)
		assert.Equal(t, "Ada", created.FirstName)
		assert.Equal(t, "", created.LastName)

		byEmail, err := s.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
		assert.Equal(t, in.PasswordHash, byEmail.PasswordHash)
		assert.True(t, byEmail.IsActive)
		assert.True(t, testNow.Equal(byEmail.CreatedAt), "created_at %v", byEmail.CreatedAt)

		byID, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", byID.Email)
		assert.Equal(t, "Ada", byID.FirstName)

		other, err := s.Create(ctx, testInput("b@x.com"))
		require.NoError(t, err)
		assert.NotEqual(t, created.ID, other.ID)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		first, err := s.Create(ctx, testInput("a@x.com"))
		require.NoError(t, err)

		_, err = s.Create(ctx, testInput("a@x.com"))
		require.Error(t, err)
		assert.True(t, IsConflict(err), "got %v", err)
		var ce ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "email", ce.Field)

		got, err := s.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("EmailIsCaseSensitive", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.Create(ctx, testInput("a@x.com"))
		require.NoError(t, err)
		_, err = s.Create(ctx, testInput("A@x.com"))
		require.NoError(t, err)

		_, err = s.FindByEmail(ctx, "A@X.COM")
		assert.True(t, IsNotFound(err))
	})

	t.Run("NotFound", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.FindByEmail(ctx, "nobody@x.com")
		assert.True(t, IsNotFound(err), "got %v", err)

		_, err = s.FindByID(ctx, 999)
		assert.True(t, IsNotFound(err), "got %v", err)

		err = s.SetActive(ctx, 999, false)
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.Create(ctx, testInput("not an email"))
		assert.True(t, IsInvalidInput(err), "got %v", err)

		in := testInput("a@x.com")
		in.PasswordHash = ""
		_, err = s.Create(ctx, in)
		assert.True(t, IsInvalidInput(err), "got %v", err)

		in = testInput("a@x.com")
		in.LastName = strings.Repeat("x", MaxNameRunes+1)
		_, err = s.Create(ctx, in)
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})

	t.Run("SetActive", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		a, err := s.Create(ctx, testInput("a@x.com"))
		require.NoError(t, err)

		require.NoError(t, s.SetActive(ctx, a.ID, false))
		got, err := s.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		require.NoError(t, s.SetActive(ctx, a.ID, true))
		got, err = s.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, got.IsActive)
	})

	t.Run("TxCommit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		var created Account
		err := s.WithinTx(ctx, func(ctx context.Context, tx Accounts) error {
			var err error
			created, err = tx.Create(ctx, testInput("a@x.com"))
			if err != nil {
				return err
			}
			seen, err := tx.FindByEmail(ctx, "a@x.com")
			if err != nil {
				return err
			}
			if seen.ID != created.ID {
				return errors.New("tx does not see its own write")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Positive(t, created.ID)

		got, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", got.Email)
	})

	t.Run("TxRollbackOnError", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.WithinTx(ctx, func(ctx context.Context, tx Accounts) error {
			if _, err := tx.Create(ctx, testInput("a@x.com")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.FindByEmail(ctx, "a@x.com")
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("TxRollbackOnPanic", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		func() {
			defer func() { _ = recover() }()
			_ = s.WithinTx(ctx, func(ctx context.Context, tx Accounts) error {
				if _, err := tx.Create(ctx, testInput("a@x.com")); err != nil {
					return err
				}
				panic("boom")
			})
		}()

		_, err := s.FindByEmail(ctx, "a@x.com")
		assert.True(t, IsNotFound(err), "got %v", err)

		// The store must remain usable after the panic.
		_, err = s.Create(ctx, testInput("a@x.com"))
		require.NoError(t, err)
	})

	t.Run("ConcurrentCreateSameEmail", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
			others    []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.WithinTx(ctx, func(ctx context.Context, tx Accounts) error {
					if _, err := tx.FindByEmail(ctx, "race@x.com"); err == nil {
						return ConflictError{Op: "test", Field: "email"}
					} else if !IsNotFound(err) {
						return err
					}
					_, err := tx.Create(ctx, testInput("race@x.com"))
					return err
				})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case IsConflict(err):
					conflicts++
				default:
					others = append(others, err)
				}
			}()
		}
		wg.Wait()

		require.Empty(t, others)
		assert.Equal(t, 1, successes)
		assert.Equal(t, n-1, conflicts)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) adminStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_DirectCreateRacesTx(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx Accounts) error {
		if _, err := tx.Create(ctx, testInput("a@x.com")); err != nil {
			return err
		}
		// A non-transactional insert lands before commit.
		_, err := s.Create(ctx, testInput("a@x.com"))
		return err
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err), "got %v", err)

	a, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.ID)
}
