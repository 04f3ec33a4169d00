package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, ComparePassword(hash, "s3cret"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func TestHashPasswordClampsCost(t *testing.T) {
	tests := []struct {
		name string
		cost int
	}{
		{"zero cost", 0},
		{"negative cost", -5},
		{"above max", bcrypt.MaxCost + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword("s3cret", tt.cost)
			require.NoError(t, err)
			assert.NoError(t, ComparePassword(hash, "s3cret"))

			actual, err := bcrypt.Cost([]byte(hash))
			require.NoError(t, err)
			assert.Equal(t, bcrypt.DefaultCost, actual)
		})
	}
}
