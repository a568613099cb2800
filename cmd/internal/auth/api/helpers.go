package authapi

import (
	"errors"
	"net/http"
	"strings"

	"authd/cmd/internal/auth/session"
)

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, session.ErrWeakPassword):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrAccountInactive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
