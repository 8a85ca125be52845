package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "engagement:status:s-1", StatusKey("s-1"))
	assert.Equal(t, "engagement:notify:s-1", NotifyLimitKey("s-1"))
}

func TestConfigOptions(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/2", PoolSize: 4}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)

	_, err = Config{URL: "http://nope"}.options()
	assert.Error(t, err)

	opts, err = DefaultConfig().options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
}

func TestCache_EmptyKey(t *testing.T) {
	c := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}))
	defer c.Close()

	assert.ErrorIs(t, c.Set(context.Background(), "", 1, time.Second), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Get(context.Background(), "", new(int)), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(context.Background()))
}

func TestNotifyLimiter_Disabled(t *testing.T) {
	l := NewNotifyLimiter(nil, 0, 0)
	ok, err := l.Allow(context.Background(), "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TTLNotifyWindow, l.window)
}
