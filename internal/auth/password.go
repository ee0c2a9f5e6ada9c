// Package auth implements the shared-password gate: a bcrypt-checked
// household password and a signed session cookie.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrNoPassword      = errors.New("no password configured")
)

// Password verifies the shared household password. Only the bcrypt hash is kept.
type Password struct {
	hash []byte
}

// NewPassword builds the verifier from a bcrypt hash when given, otherwise
// hashes the plain password.
func NewPassword(plain, hash string) (*Password, error) {
	if hash = strings.TrimSpace(hash); hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid password hash: %w", err)
		}
		return &Password{hash: []byte(hash)}, nil
	}
	if plain == "" {
		return nil, ErrNoPassword
	}
	h, err := HashPassword(plain)
	if err != nil {
		return nil, err
	}
	return &Password{hash: []byte(h)}, nil
}

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Verify returns ErrInvalidPassword unless candidate matches.
func (p *Password) Verify(candidate string) error {
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(candidate)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
