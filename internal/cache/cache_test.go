package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheGetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "geo:")

	mock.ExpectGet("geo:pune").RedisNil()

	val, ok, err := c.Get(context.Background(), "pune")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheSetThenGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "geo:")

	mock.ExpectSet("geo:pune", `[{"lat":18.5}]`, time.Hour).SetVal("OK")
	mock.ExpectGet("geo:pune").SetVal(`[{"lat":18.5}]`)

	require.NoError(t, c.Set(context.Background(), "pune", []byte(`[{"lat":18.5}]`), time.Hour))

	val, ok, err := c.Get(context.Background(), "pune")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"lat":18.5}]`, string(val))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheGetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "")

	mock.ExpectGet("k").SetErr(errors.New("connection refused"))

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))

	val, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(val))

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheNoTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	now = now.Add(24 * 365 * time.Hour)

	_, ok, _ := c.Get(context.Background(), "k")
	assert.True(t, ok)
}

func TestMemoryCacheSetDropsExpiredWhenFull(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithMaxEntries(100))
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("q%d", i), []byte("v"), time.Minute))
	}
	now = now.Add(time.Hour)

	require.NoError(t, c.Set(ctx, "fresh", []byte("v"), time.Minute))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheSweepRemovesUnreadExpiredKeys(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("q%d", i), []byte("v"), time.Minute))
	}
	require.NoError(t, c.Set(ctx, "pinned", []byte("v"), 0))
	now = now.Add(time.Hour)

	assert.Equal(t, 50, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheEvictsSoonestExpiringAtCapacity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithMaxEntries(3))
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "pinned", []byte("v"), 0))
	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Hour))
	require.NoError(t, c.Set(ctx, "new", []byte("v"), time.Hour))

	assert.Equal(t, 3, c.Len())
	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "pinned")
	assert.True(t, ok)

	// Overwriting an existing key never evicts.
	require.NoError(t, c.Set(ctx, "long", []byte("v2"), time.Hour))
	assert.Equal(t, 3, c.Len())
}
