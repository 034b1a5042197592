package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forecastEntry struct {
	Caliber string  `json:"caliber"`
	Point   float64 `json:"point"`
}

func newRedisCache(t *testing.T, s *miniredis.Miniredis) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rc := NewRedisCacheFromClient(client, "test")
	t.Cleanup(func() { _ = client.Close() })
	return rc
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	return newRedisCache(t, s), s
}

func newLayered(t *testing.T, s *miniredis.Miniredis) *LayeredCache {
	t.Helper()
	lc, err := NewLayeredCache(newRedisCache(t, s), WithLayeredMemorySize(10))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lc.Close() })
	return lc
}

func exerciseService(t *testing.T, c Service) {
	ctx := context.Background()

	var miss forecastEntry
	assert.ErrorIs(t, c.Get(ctx, "forecast:16/20", &miss), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "forecast:16/20:30", forecastEntry{Caliber: "16/20", Point: 6.19}, time.Minute))
	require.NoError(t, c.Set(ctx, "forecast:21/25:30", forecastEntry{Caliber: "21/25", Point: 5.4}, time.Minute))
	require.NoError(t, c.Set(ctx, "status", "ok", time.Minute))

	var got forecastEntry
	require.NoError(t, c.Get(ctx, "forecast:16/20:30", &got))
	assert.Equal(t, forecastEntry{Caliber: "16/20", Point: 6.19}, got)

	var s string
	require.NoError(t, c.Get(ctx, "status", &s))
	assert.Equal(t, "ok", s)

	ok, err := c.Exists(ctx, "forecast:21/25:30")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.DeleteByPattern(ctx, BuildPattern("forecast:16/20")))
	assert.ErrorIs(t, c.Get(ctx, "forecast:16/20:30", &got), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "forecast:21/25:30", &got))

	require.NoError(t, c.Delete(ctx, "forecast:21/25:30"))
	ok, err = c.Exists(ctx, "forecast:21/25:30")
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := c.TryLock(ctx, "lock:recompute", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)
	ok, err = c.Exists(ctx, "lock:recompute")
	require.NoError(t, err)
	assert.True(t, ok)
	locked, err = c.TryLock(ctx, "lock:recompute", time.Minute)
	require.NoError(t, err)
	assert.False(t, locked)
	require.NoError(t, c.Unlock(ctx, "lock:recompute"))
	locked, err = c.TryLock(ctx, "lock:recompute", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestMemoryCache(t *testing.T) {
	exerciseService(t, NewMemoryCache())
}

func TestRedisCache(t *testing.T) {
	rc, s := setupTestRedis(t)
	exerciseService(t, rc)
	assert.True(t, s.Exists("test:status"))
}

func TestLayeredCache(t *testing.T) {
	exerciseService(t, newLayered(t, miniredis.RunT(t)))
}

func TestLayeredCacheServesRefilledEntriesFromMemory(t *testing.T) {
	s := miniredis.RunT(t)
	lc := newLayered(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set("test:remote", `{"caliber":"41/50","point":4.2}`))
	var got forecastEntry
	require.NoError(t, lc.Get(ctx, "remote", &got))
	assert.Equal(t, "41/50", got.Caliber)

	s.Del("test:remote")
	got = forecastEntry{}
	require.NoError(t, lc.Get(ctx, "remote", &got))
	assert.Equal(t, 4.2, got.Point)
}

func TestLayeredCacheDropsPeerCopiesOnInvalidation(t *testing.T) {
	s := miniredis.RunT(t)
	writer, reader := newLayered(t, s), newLayered(t, s)
	ctx := context.Background()

	require.NoError(t, writer.Set(ctx, "forecast:public:16/20", forecastEntry{Caliber: "16/20", Point: 6.1}, time.Minute))
	var got forecastEntry
	require.NoError(t, reader.Get(ctx, "forecast:public:16/20", &got))
	assert.Equal(t, 6.1, got.Point)

	require.NoError(t, writer.Set(ctx, "forecast:public:16/20", forecastEntry{Caliber: "16/20", Point: 6.3}, time.Minute))
	assert.Eventually(t, func() bool {
		var v forecastEntry
		return reader.Get(ctx, "forecast:public:16/20", &v) == nil && v.Point == 6.3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, writer.DeleteByPattern(ctx, BuildPattern("forecast")))
	assert.Eventually(t, func() bool {
		var v forecastEntry
		return reader.Get(ctx, "forecast:public:16/20", &v) == ErrCacheMiss
	}, time.Second, 10*time.Millisecond)
}

func TestRedisCacheUnlockLeavesForeignLocks(t *testing.T) {
	s := miniredis.RunT(t)
	a, b := newRedisCache(t, s), newRedisCache(t, s)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "lock:recompute:16/20", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Unlock(ctx, "lock:recompute:16/20"))
	ok, err = b.TryLock(ctx, "lock:recompute:16/20", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "b must not release a's lock")

	// a's lock lapses and b takes it over; a's late unlock must not free it.
	s.FastForward(2 * time.Second)
	ok, err = b.TryLock(ctx, "lock:recompute:16/20", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Unlock(ctx, "lock:recompute:16/20"))
	assert.True(t, s.Exists("test:lock:recompute:16/20"))

	require.NoError(t, b.Unlock(ctx, "lock:recompute:16/20"))
	assert.False(t, s.Exists("test:lock:recompute:16/20"))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCacheEvictionKeepsLocks(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(1))

	ok, err := mc.TryLock(ctx, "lock:recompute", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))

	held, err := mc.Exists(ctx, "lock:recompute")
	require.NoError(t, err)
	assert.True(t, held)
	ok, err = mc.TryLock(ctx, "lock:recompute", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryTTL(time.Hour))
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "short", "x", time.Minute))
	require.NoError(t, mc.Set(ctx, "default", "y", 0))
	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "short", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "default", &s))
	assert.Equal(t, "y", s)
	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is free again")

	now = now.Add(time.Hour)
	assert.ErrorIs(t, mc.Get(ctx, "default", &s), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "forecast:16/20:HEADLESS:30", GenerateKeyWithParams("forecast", "16/20", "HEADLESS", 30))
	assert.True(t, matchPattern("forecast:*", "forecast:x"))
	assert.False(t, matchPattern("forecast:a", "forecast:ab"))
}
