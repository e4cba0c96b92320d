package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 10

// dummyPasswordHash is compared against when no account matches so misses cost the same as hits.
var dummyPasswordHash = mustHash("portal-dummy-password")

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if errHash != nil {
		return "", fmt.Errorf("security: hash password: %w", errHash)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	errCompare := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return errCompare == nil
}

// BurnPasswordCheck performs a throwaway comparison for unknown accounts.
func BurnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
}

// UnusablePasswordHash returns a value no password can match. Used for system accounts.
func UnusablePasswordHash() string {
	return "!"
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		panic(errors.Join(errors.New("security: init dummy hash"), err))
	}
	return string(hash)
}
