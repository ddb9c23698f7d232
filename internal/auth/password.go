package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when Config.BcryptCost is zero.
const DefaultBcryptCost = 12

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// maxPasswordLength is bcrypt's input limit in bytes.
const maxPasswordLength = 72

type passwordHasher struct {
	cost int
}

func newPasswordHasher(cost int) *passwordHasher {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &passwordHasher{cost: cost}
}

func (h *passwordHasher) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *passwordHasher) verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > maxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
