package password

import "unicode/utf8"

// Validate checks p against the policy and returns the first violation.
// Every returned error wraps ErrWeakPassword. The character classes are
// ASCII only: A-Z, a-z and 0-9.
func (p Policy) Validate(plain string) error {
	if utf8.RuneCountInString(plain) < p.MinLength {
		return ErrPasswordTooShort
	}
	if p.MaxBytes > 0 && len(plain) > p.MaxBytes {
		return ErrPasswordTooLong
	}

	var upper, lower, digit bool
	for _, r := range plain {
		switch {
		case 'A' <= r && r <= 'Z':
			upper = true
		case 'a' <= r && r <= 'z':
			lower = true
		case '0' <= r && r <= '9':
			digit = true
		}
	}

	if p.RequireUpper && !upper {
		return ErrMissingUpper
	}
	if p.RequireLower && !lower {
		return ErrMissingLower
	}
	if p.RequireDigit && !digit {
		return ErrMissingDigit
	}
	return nil
}
