package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/domain"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

func newAuthFixture() (*memStore, *AuthService) {
	store := newMemStore()
	cfg := config.Config{
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 30,
			BcryptCost:            bcrypt.MinCost,
		},
	}
	return store, NewAuthService(cfg, &fakeUserRepo{store: store})
}

func TestRegister(t *testing.T) {
	t.Run("creates account and issues token", func(t *testing.T) {
		_, svc := newAuthFixture()

		user, token, _, err := svc.Register(context.Background(), RegisterInput{
			Name:     "Jordan Lee",
			Email:    "  Jordan@Example.com ",
			Password: "s3cret",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "jordan@example.com", user.Email)
		assert.Equal(t, domain.RoleEmployee, user.Role, "role defaults to employee")
		assert.True(t, user.Active)
		assert.NotEmpty(t, token)

		claims, err := svc.TokenManager().ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, svc := newAuthFixture()
		input := RegisterInput{Email: "dup@example.com", Password: "s3cret"}

		_, _, _, err := svc.Register(context.Background(), input)
		require.NoError(t, err)

		_, _, _, err = svc.Register(context.Background(), input)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})

	t.Run("rejects missing credentials", func(t *testing.T) {
		_, svc := newAuthFixture()
		_, _, _, err := svc.Register(context.Background(), RegisterInput{Email: "", Password: ""})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})
}

func TestLogin(t *testing.T) {
	store, svc := newAuthFixture()
	registered, _, _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "sam@example.com",
		Password: "s3cret",
	})
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, token, _, err := svc.Login(context.Background(), "SAM@example.com", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, _, err := svc.Login(context.Background(), "sam@example.com", "nope")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, _, err := svc.Login(context.Background(), "ghost@example.com", "s3cret")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
	})

	t.Run("disabled account", func(t *testing.T) {
		store.mu.Lock()
		store.users[registered.ID].Active = false
		store.mu.Unlock()

		_, _, _, err := svc.Login(context.Background(), "sam@example.com", "s3cret")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
	})
}

func TestChangePassword(t *testing.T) {
	_, svc := newAuthFixture()
	user, _, _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "pat@example.com",
		Password: "oldpass",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrong", "newpass")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "oldpass", "newpass"))

	_, _, _, err = svc.Login(context.Background(), "pat@example.com", "newpass")
	require.NoError(t, err)
	_, _, _, err = svc.Login(context.Background(), "pat@example.com", "oldpass")
	require.Error(t, err)
}
