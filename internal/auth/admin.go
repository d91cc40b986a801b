// Package auth guards the admin panel's mutating routes with a single
// bcrypt-checked credential.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrDisabled           = errors.New("admin access is not configured")
)

// Admin verifies the shared admin credential.
type Admin struct {
	passwordHash []byte
}

// NewAdmin creates a verifier from a bcrypt password hash. An empty hash
// disables admin access.
func NewAdmin(passwordHash string) *Admin {
	return &Admin{passwordHash: []byte(passwordHash)}
}

// Verify checks a presented password against the configured hash.
func (a *Admin) Verify(password string) error {
	if len(a.passwordHash) == 0 {
		return ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for the configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
