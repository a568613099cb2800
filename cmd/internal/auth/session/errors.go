package session

import (
	"errors"
)

// Rejection kinds. Every business rejection returned by Service unwraps to
// exactly one of these. Anything else is a transient failure.
var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrWeakPassword       = errors.New("weak_password")
	ErrDuplicateEmail     = errors.New("duplicate_email")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountInactive    = errors.New("account_inactive")
	ErrInvalidToken       = errors.New("invalid_token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Caller-safe messages. Unknown email and wrong password share one.
const (
	msgDuplicateEmail     = "an account with this email already exists"
	msgInvalidCredentials = "incorrect email or password"
	msgAccountInactive    = "account is inactive"
	msgInvalidToken       = "invalid or expired token"
)

// RejectError is a business rejection with a message safe to show callers.
type RejectError struct {
	Kind error
	Msg  string
}

func (e *RejectError) Error() string { return e.Msg }

func (e *RejectError) Unwrap() error { return e.Kind }

func reject(kind error, msg string) error {
	return &RejectError{Kind: kind, Msg: msg}
}

// IsRejection reports whether err is a business rejection rather than a
// transient failure.
func IsRejection(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// Code returns the stable machine-readable kind of err, or "server_error".
func Code(err error) string {
	var re *RejectError
	if errors.As(err, &re) && re.Kind != nil {
		return re.Kind.Error()
	}
	return "server_error"
}

// Message returns the caller-safe text of err.
func Message(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Msg
	}
	return "internal error"
}
