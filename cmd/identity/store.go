package identity

import (
	"context"
	"time"
)

// Account is a registered user. PasswordHash is the opaque output of the
// credential hasher and must never leave the service layer.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	CreatedAt    time.Time
}

// PublicAccount is the caller-safe projection of Account.
type PublicAccount struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Public drops the password hash.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}

// CreateAccountInput describes a new account. New accounts are always active.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Now          time.Time
}

// Accounts is the set of account operations available both directly on a
// Store and inside Store.WithinTx.
type Accounts interface {
	// FindByEmail matches the stored email exactly. Missing rows yield ErrNotFound.
	FindByEmail(ctx context.Context, email string) (Account, error)
	// FindByID returns ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id int64) (Account, error)
	// Create inserts a new active account and assigns its id.
	// A duplicate email yields ConflictError{Field: "email"} and no row.
	Create(ctx context.Context, in CreateAccountInput) (Account, error)
}

// Store is the account persistence boundary.
type Store interface {
	Accounts

	// WithinTx runs fn in a single transaction. The transaction commits when
	// fn returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Accounts) error) error
}

// Admin covers operator-only mutations. The session service never uses it.
type Admin interface {
	// SetActive flips the activation flag. Unknown ids yield ErrNotFound.
	SetActive(ctx context.Context, id int64, active bool) error
}

func checkCreate(op string, in CreateAccountInput) error {
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if in.PasswordHash == "" {
		return invalid(op, "password hash is required")
	}
	if err := ValidateName("first_name", in.FirstName); err != nil {
		return err
	}
	return ValidateName("last_name", in.LastName)
}
