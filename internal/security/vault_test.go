package security

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_RoundTrip(t *testing.T) {
	v, err := NewVault("master-secret")
	require.NoError(t, err)

	for _, plaintext := range []string{"", "sk-live-1234", strings.Repeat("x", 200), "日本語のキー"} {
		blob, errEnc := v.Encrypt(plaintext)
		require.NoError(t, errEnc)
		got, errDec := v.Decrypt(blob)
		require.NoError(t, errDec)
		assert.Equal(t, plaintext, got)
	}
}

func TestVault_FreshNonceEachCall(t *testing.T) {
	v, err := NewVault("master-secret")
	require.NoError(t, err)

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	raw, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, nonceSize+len("same")+tagSize)
}

func TestVault_DecryptFailures(t *testing.T) {
	v, err := NewVault("master-secret")
	require.NoError(t, err)
	other, err := NewVault("another-secret")
	require.NoError(t, err)

	blob, err := v.Encrypt("sk-live-1234")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	cases := map[string]string{
		"wrong key": "",
		"tampered":  tampered,
		"bad b64":   "%%%not-base64%%%",
		"too short": base64.StdEncoding.EncodeToString([]byte("short")),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if name == "wrong key" {
				_, errDec := other.Decrypt(blob)
				assert.ErrorIs(t, errDec, ErrDecryptionFailed)
				return
			}
			_, errDec := v.Decrypt(input)
			assert.ErrorIs(t, errDec, ErrDecryptionFailed)
		})
	}
}

func TestVault_DecryptRejectsEveryTagBitFlip(t *testing.T) {
	v, err := NewVault("master-secret")
	require.NoError(t, err)

	blob, err := v.Encrypt("sk-live-1234")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	for pos := len(raw) - tagSize; pos < len(raw); pos++ {
		tampered := append([]byte(nil), raw...)
		tampered[pos] ^= 1 << (pos % 8)
		_, errDec := v.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, errDec, ErrDecryptionFailed, "tag byte %d", pos)
	}
}

func TestNewVault_RequiresSecret(t *testing.T) {
	_, err := NewVault("  ")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestHashLookupToken(t *testing.T) {
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		HashLookupToken("test"))
	assert.Equal(t, HashLookupToken("oat_abc"), HashLookupToken("oat_abc"))
	assert.NotEqual(t, HashLookupToken("oat_abc"), HashLookupToken("oat_abd"))
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := GenerateToken(PrefixAppToken)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(token, PrefixAppToken))
		body := strings.TrimPrefix(token, PrefixAppToken)
		decoded, errDecode := base64.RawURLEncoding.DecodeString(body)
		require.NoError(t, errDecode)
		assert.Len(t, decoded, tokenByteCount)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword(UnusablePasswordHash(), "!"))
	assert.False(t, CheckPassword("", ""))
}

func TestSessionToken(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	token, err := IssueSessionToken("cookie-secret", "user-1", now, time.Hour)
	require.NoError(t, err)

	sub, err := ParseSessionToken("cookie-secret", token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = ParseSessionToken("cookie-secret", token, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidSessionToken)

	_, err = ParseSessionToken("other-secret", token, now)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)

	_, err = ParseSessionToken("cookie-secret", "user-1", now)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)
}
