package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "driver:42:position")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "driver:42:position", []byte(`{"lat":1}`), time.Minute))
	require.True(t, mr.Exists("tracker:driver:42:position"))

	b, ok, err := c.Get(ctx, "driver:42:position")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"lat":1}`), b)

	mr.FastForward(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "driver:42:position")
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.Zero(t, mr.TTL("tracker:k"))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestStore_SharedClientStaysOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	s := NewWithClient(rc, "test:")
	require.NoError(t, s.Close())

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.True(t, mr.Exists("test:k"))
}

func TestStore_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	s := New(mr.Addr())
	mr.Close()

	_, _, err := s.Get(context.Background(), "driver:1:position")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis get driver:1:position")
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:poll:o1", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	now = now.Add(20 * time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:poll:o1", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	now = now.Add(20 * time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:poll:o1", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	// The first call has left the window.
	now = now.Add(25 * time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:poll:o1", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	now = now.Add(time.Minute)
	ok, n, _ = rl.Allow(ctx, "rl:poll:o1", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	mr.Close()

	_, _, err := rl.Allow(context.Background(), "rl:poll:o1", 2, time.Minute)
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis ratelimit")
}
