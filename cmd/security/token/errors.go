package token

import "errors"

// Public, stable errors for callers.
var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrSecretMissing  = errors.New("token secret missing")
	ErrSecretTooShort = errors.New("token secret too short")
	ErrUnsupportedAlg = errors.New("unsupported token algorithm")
)

// Rejection reasons. They are recorded for logs and metrics only.
const (
	ReasonMalformed = "malformed"
	ReasonSignature = "signature"
	ReasonExpired   = "expired"
	ReasonSubject   = "subject"
	ReasonIssuer    = "issuer"
)

// ValidationError is returned for every rejected token.
// Its message never varies with Reason.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string { return ErrInvalidToken.Error() }

// Unwrap exposes ErrInvalidToken and the underlying parser error.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidToken}
	}
	return []error{ErrInvalidToken, e.Err}
}

// ReasonOf returns the rejection reason recorded in err, or "".
func ReasonOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

func reject(reason string, err error) error {
	return &ValidationError{Reason: reason, Err: err}
}
