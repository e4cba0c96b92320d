package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSessionToken indicates a cookie value that is unsigned, expired or malformed.
var ErrInvalidSessionToken = errors.New("security: invalid session token")

// IssueSessionToken signs a cookie value whose subject is the user id.
func IssueSessionToken(secret, userID string, now time.Time, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrMissingSecret
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign session token: %w", errSign)
	}
	return signed, nil
}

// ParseSessionToken verifies a cookie value and returns the user id it names.
func ParseSessionToken(secret, token string, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(token) == "" {
		return "", ErrInvalidSessionToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errParse != nil || !parsed.Valid {
		return "", ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidSessionToken
	}
	return claims.Subject, nil
}
