package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "brightpath/pkg/domain-errors"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct horse")

	t.Run("same secret matches", func(t *testing.T) {
		ok, err := h.Matches("correct horse", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("different secret does not match", func(t *testing.T) {
		ok, err := h.Matches("battery staple", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed hash is an error", func(t *testing.T) {
		_, err := h.Matches("correct horse", "not-a-hash")
		require.Error(t, err)
	})

	t.Run("each hash is salted", func(t *testing.T) {
		again, err := h.Hash("correct horse")
		require.NoError(t, err)
		assert.NotEqual(t, hash, again)
	})
}

func TestHasher_RejectsUnusableSecrets(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	for name, secret := range map[string]string{
		"empty":    "",
		"too long": strings.Repeat("a", maxSecretBytes+1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.Hash(secret)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestHasher_Cost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)

	cheap := NewHasher(bcrypt.MinCost)
	hash, err := cheap.Hash("secret")
	require.NoError(t, err)
	assert.False(t, cheap.NeedsRehash(hash))
	assert.True(t, NewHasher(bcrypt.MinCost+1).NeedsRehash(hash))
	assert.True(t, cheap.NeedsRehash("garbage"))
}
