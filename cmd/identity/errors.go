package identity

import (
	"errors"
	"fmt"
)

// Error kinds. Every classified store error unwraps to one of them.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
)

// OpError carries the failing operation and a kind. Msg never holds
// passwords, hashes or tokens.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError is returned when a create would break a uniqueness rule.
// Field is the logical column, currently always "email".
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: %s already taken", e.Op, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError is returned by lookups and updates that match no account.
type NotFoundError struct {
	Op string
}

func (e NotFoundError) Error() string { return e.Op + ": account not found" }

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err means no matching account.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err was caused by the arguments.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func notFound(op string) error { return NotFoundError{Op: op} }

func emailTaken(op string) error { return ConflictError{Op: op, Field: "email"} }
