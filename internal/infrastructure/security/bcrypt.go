// Package security hashes trip and admin passwords.
package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// BcryptHasher implements port.PasswordHasher
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher; a zero cost uses bcrypt.DefaultCost
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of password
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare returns entity.ErrAuth when password does not match hash
func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%w: wrong password", entity.ErrAuth)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrAuth, err)
	}
	return nil
}

var _ port.PasswordHasher = (*BcryptHasher)(nil)
