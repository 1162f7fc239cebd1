package domain

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrEmailNotVerified  = errors.New("email not verified")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrSelfDelete        = errors.New("cannot delete yourself")
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return ErrInvalidInput
	}
	return nil
}

// NormalizeEmail lowercases and trims an address; uniqueness within a tenant is
// checked on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return ErrInvalidInput
	}
	return nil
}
