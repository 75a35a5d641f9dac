package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLRU(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, 0)

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Set(ctx, "c", []byte("3"))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry is evicted")
	v, ok := c.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, []byte("3"), v)

	c.Delete(ctx, "b", "c")
	assert.Equal(t, 0, c.Len())

	c.Set(ctx, "d", []byte("4"))
	c.Purge(ctx)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 20*time.Millisecond)

	c.Set(ctx, "a", []byte("1"))
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestTiered_BackfillsMemory(t *testing.T) {
	ctx := context.Background()
	memory, remote := NewLRU(10, 0), NewLRU(10, 0)
	tiered := NewTiered(memory, remote)

	remote.Set(ctx, "drug:ibuprofen", []byte("{}"))

	v, ok := tiered.Get(ctx, "drug:ibuprofen")
	require.True(t, ok)
	assert.Equal(t, []byte("{}"), v)
	assert.Equal(t, 1, memory.Len())

	tiered.Delete(ctx, "drug:ibuprofen")
	assert.Equal(t, 0, memory.Len())
	assert.Equal(t, 0, remote.Len())
}

func TestTiered_NoRemote(t *testing.T) {
	ctx := context.Background()
	tiered := NewTiered(NewLRU(10, 0), nil)

	tiered.Set(ctx, "k", []byte("v"))
	_, ok := tiered.Get(ctx, "k")
	assert.True(t, ok)

	tiered.Purge(ctx)
	_, ok = tiered.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedis_UnreachableServerDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisWithClient(client, "test:", time.Minute, newTestLogger())
	defer r.Close()

	for i := 0; i < 3; i++ {
		_, ok := r.Get(ctx, "drug:x")
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateOpen, r.breaker.State())

	// Writes are swallowed while the breaker is open.
	r.Set(ctx, "drug:x", []byte("{}"))
	r.Delete(ctx, "drug:x")
	r.Purge(ctx)
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(RedisConfig{URL: "://bad"}, newTestLogger())
	assert.Error(t, err)
}
