package identity

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	MaxEmailBytes = 254
	MaxNameRunes  = 100
)

// CleanEmail trims surrounding whitespace. Case is preserved: emails are
// compared exactly as stored.
func CleanEmail(s string) string {
	return strings.TrimSpace(s)
}

// ValidateEmail checks that email is a bare addr-spec with a domain part.
func ValidateEmail(email string) error {
	const op = "identity.ValidateEmail"

	if email == "" {
		return invalid(op, "email is required")
	}
	if len(email) > MaxEmailBytes {
		return invalid(op, "email too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return invalid(op, "email is not a valid address")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return invalid(op, "email is not a valid address")
	}
	return nil
}

// ValidateName bounds optional profile names.
func ValidateName(field, v string) error {
	if utf8.RuneCountInString(v) > MaxNameRunes {
		return invalid("identity.ValidateName", field+" too long")
	}
	if !utf8.ValidString(v) {
		return invalid("identity.ValidateName", field+" is not valid UTF-8")
	}
	return nil
}
