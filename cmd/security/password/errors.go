package password

import "errors"

// Public, stable errors for callers.
var (
	ErrWeakPassword  = errors.New("weak password")
	ErrInvalidHash   = errors.New("invalid password hash")
	ErrInvalidConfig = errors.New("invalid password config")
)

// PolicyError describes a single password policy violation.
// Every PolicyError unwraps to ErrWeakPassword.
type PolicyError struct {
	Rule string
	Msg  string
}

func (e *PolicyError) Error() string { return e.Msg }

func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

// Policy violations. Compare with errors.Is.
var (
	ErrPasswordTooShort = &PolicyError{Rule: "min_length", Msg: "password too short"}
	ErrPasswordTooLong  = &PolicyError{Rule: "max_bytes", Msg: "password too long"}
	ErrMissingUpper     = &PolicyError{Rule: "upper", Msg: "password must contain an uppercase letter"}
	ErrMissingLower     = &PolicyError{Rule: "lower", Msg: "password must contain a lowercase letter"}
	ErrMissingDigit     = &PolicyError{Rule: "digit", Msg: "password must contain a digit"}
)
