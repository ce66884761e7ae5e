package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendfeed/internal/config"
)

var testAuthCfg = config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: time.Hour}

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken(7, "alice", testAuthCfg)
	require.NoError(t, err)

	claims, err := ValidateToken(t.Context(), token, testAuthCfg.JWTSecretKey, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAtTime(), time.Minute)
}

func TestValidateToken_Rejects(t *testing.T) {
	token, err := GenerateToken(7, "alice", testAuthCfg)
	require.NoError(t, err)

	_, err = ValidateToken(t.Context(), token, "other-secret", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateToken(t.Context(), "not.a.token", testAuthCfg.JWTSecretKey, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken(7, "alice", config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: -time.Minute})
	require.NoError(t, err)
	_, err = ValidateToken(t.Context(), expired, testAuthCfg.JWTSecretKey, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeToken(t *testing.T) {
	blacklist := NewMemoryBlacklist()
	token, err := GenerateToken(7, "alice", testAuthCfg)
	require.NoError(t, err)

	claims, err := ValidateToken(t.Context(), token, testAuthCfg.JWTSecretKey, blacklist)
	require.NoError(t, err)

	require.NoError(t, RevokeToken(t.Context(), claims, blacklist))
	_, err = ValidateToken(t.Context(), token, testAuthCfg.JWTSecretKey, blacklist)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Other tokens of the same user stay valid.
	other, err := GenerateToken(7, "alice", testAuthCfg)
	require.NoError(t, err)
	_, err = ValidateToken(t.Context(), other, testAuthCfg.JWTSecretKey, blacklist)
	assert.NoError(t, err)
}

func TestMemoryBlacklist_Expiry(t *testing.T) {
	b := NewMemoryBlacklist()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Add(t.Context(), "jti", now.Add(time.Minute)))
	require.NoError(t, b.Add(t.Context(), "old", now.Add(-time.Minute)))

	revoked, _ := b.IsBlacklisted(t.Context(), "jti")
	assert.True(t, revoked)
	revoked, _ = b.IsBlacklisted(t.Context(), "old")
	assert.False(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, _ = b.IsBlacklisted(t.Context(), "jti")
	assert.False(t, revoked)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))

	_, err = HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
