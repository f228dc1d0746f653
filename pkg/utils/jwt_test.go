package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x00000000000000000000000000000000000000a1"

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 24*time.Hour)

	access, refresh, expiresAt, err := m.GenerateTokens(7, wallet)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := m.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, wallet, claims.WalletAddress)

	claims, err = m.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)
}

func TestJWTManager_TokenTypeMismatch(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 24*time.Hour)
	access, refresh, _, err := m.GenerateTokens(1, wallet)
	require.NoError(t, err)

	_, err = m.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenType)
	_, err = m.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenType)
}

func TestJWTManager_ExpiredAndForeign(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, time.Hour)
	start := time.Now()
	m.now = func() time.Time { return start }
	access, _, _, err := m.GenerateTokens(1, wallet)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.VerifyAccessToken(access)
	assert.Error(t, err)

	other := NewJWTManager("other-secret", time.Hour, time.Hour)
	token, _, _, err := other.GenerateTokens(1, wallet)
	require.NoError(t, err)
	_, err = NewJWTManager("secret", time.Hour, time.Hour).VerifyAccessToken(token)
	assert.Error(t, err)
}
