package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/approval-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 30)

	token, expiresAt, err := tm.GenerateToken("user-1", domain.RoleApprover)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, domain.RoleApprover, claims.Role)
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	tm := NewTokenManager("test-secret", 30)

	t.Run("garbage token", func(t *testing.T) {
		_, err := tm.ParseToken("not-a-token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", 30)
		token, _, err := other.GenerateToken("user-1", domain.RoleEmployee)
		require.NoError(t, err)

		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		short := &TokenManager{secret: []byte("test-secret"), ttl: -time.Minute}
		token, _, err := short.GenerateToken("user-1", domain.RoleEmployee)
		require.NoError(t, err)

		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})
}

func TestDefaultTTL(t *testing.T) {
	tm := NewTokenManager("secret", 0)
	_, expiresAt, err := tm.GenerateToken("user-1", domain.RoleEmployee)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)
}
