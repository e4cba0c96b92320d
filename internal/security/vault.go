package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Token prefixes for the bearer secrets issued by the portal.
const (
	PrefixInvite     = "inv_"
	PrefixAppToken   = "oat_"
	PrefixAppSession = "ast_"
)

const (
	nonceSize      = 12
	tagSize        = 16
	tokenByteCount = 48
)

var (
	// ErrMissingSecret indicates the vault master secret is not configured.
	ErrMissingSecret = errors.New("security: missing vault secret")
	// ErrDecryptionFailed is returned for any blob that cannot be opened.
	ErrDecryptionFailed = errors.New("security: decryption failed")
)

// Vault encrypts user credentials at rest and derives lookup hashes for bearer tokens.
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives the AES-256 key as SHA-256 of the configured secret.
func NewVault(secret string) (*Vault, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	key := sha256.Sum256([]byte(secret))
	block, errCipher := aes.NewCipher(key[:])
	if errCipher != nil {
		return nil, fmt.Errorf("security: new cipher: %w", errCipher)
	}
	aead, errGCM := cipher.NewGCMWithNonceSize(block, nonceSize)
	if errGCM != nil {
		return nil, fmt.Errorf("security: new gcm: %w", errGCM)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh nonce and returns base64(nonce || ciphertext || tag).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, errRand := rand.Read(nonce); errRand != nil {
		return "", fmt.Errorf("security: read nonce: %w", errRand)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any malformed or tampered blob yields ErrDecryptionFailed.
func (v *Vault) Decrypt(blob string) (string, error) {
	raw, errDecode := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if errDecode != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < nonceSize+tagSize {
		return "", ErrDecryptionFailed
	}
	plaintext, errOpen := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if errOpen != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// HashLookupToken returns the hex SHA-256 digest used to store and find bearer tokens.
func HashLookupToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns prefix followed by 384 random bits in unpadded base64url.
func GenerateToken(prefix string) (string, error) {
	buf := make([]byte, tokenByteCount)
	if _, errRand := rand.Read(buf); errRand != nil {
		return "", fmt.Errorf("security: read token bytes: %w", errRand)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
