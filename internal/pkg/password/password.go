// Package password provides bcrypt hashing and password policy checks.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the default bcrypt cost.
	DefaultCost = 12

	// MinLength is the minimum accepted password length.
	MinLength = 8
)

// ErrPolicy is returned when a password fails the policy check.
var ErrPolicy = errors.New("password does not meet requirements")

// Hash hashes a password using bcrypt with the given cost.
// A cost of 0 uses DefaultCost.
func Hash(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// Verify compares a password with a bcrypt hash.
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Validate checks the password against the policy: minimum length,
// at least one letter and one digit.
func Validate(password string) error {
	if len(password) < MinLength {
		return fmt.Errorf("%w: at least %d characters", ErrPolicy, MinLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("%w: must contain a letter and a digit", ErrPolicy)
	}

	return nil
}
