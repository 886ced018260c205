// internal/auth/auth_test.go
package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	k, err := NewKeys(time.Hour)
	require.NoError(t, err)

	token, err := k.CreateToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, k.Authenticate(token))
}

func TestAuthenticateRejectsForeignToken(t *testing.T) {
	k1, err := NewKeys(time.Hour)
	require.NoError(t, err)
	k2, err := NewKeys(time.Hour)
	require.NoError(t, err)

	token, err := k1.CreateToken()
	require.NoError(t, err)

	// signed by a different process's key pair
	assert.Error(t, k2.Authenticate(token))
	assert.Error(t, k1.Authenticate("not.a.token"))
}

func TestHashAndVerifyPassphrase(t *testing.T) {
	hash, err := HashPassphrase("open sesame")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := VerifyPassphrase("open sesame", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassphrase("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassphrase("open sesame")
	require.NoError(t, err)
	h2, err := HashPassphrase("open sesame")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyPassphraseRejectsBadHash(t *testing.T) {
	_, err := VerifyPassphrase("x", "garbage")
	assert.ErrorIs(t, err, ErrInvalidHash)
}
