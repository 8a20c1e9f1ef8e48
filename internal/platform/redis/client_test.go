package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightpath/internal/platform/config"
)

func TestNewWithoutURLDisablesRedis(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestOptions(t *testing.T) {
	t.Run("applies pool settings over the URL", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:          "redis://cache:6380/2",
			PoolSize:     12,
			MinIdleConns: 3,
			ReadTimeout:  time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 12, opts.PoolSize)
		assert.Equal(t, 3, opts.MinIdleConns)
		assert.Equal(t, time.Second, opts.ReadTimeout)
	})

	t.Run("rejects a malformed URL", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://not-redis"})
		require.Error(t, err)
	})
}
