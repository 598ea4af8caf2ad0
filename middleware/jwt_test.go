package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestParseToken_Valid(t *testing.T) {
	tok, err := GenerateToken("extractor-1", RoleFeed, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "extractor-1", claims.Subject)
	assert.Equal(t, RoleFeed, claims.Role)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("x", RoleObserver, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "wrong-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := GenerateToken("x", RoleObserver, testSecret, -time.Second)
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}

func TestParseToken_MissingRole(t *testing.T) {
	tok, err := GenerateToken("x", "", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testSecret)
	assert.Error(t, err)
	_, err = ParseToken("", testSecret)
	assert.Error(t, err)
}
