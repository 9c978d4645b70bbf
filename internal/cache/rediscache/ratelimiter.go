package rediscache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window log: each call is a member of a sorted set
// scored by its time, and members older than the window are trimmed first.
type RateLimiter struct {
	c         redis.UniversalClient
	namespace string
	now       func() time.Time
	seq       atomic.Uint64
}

func NewRateLimiter(addr string) *RateLimiter {
	return NewRateLimiterWithClient(redis.NewClient(&redis.Options{Addr: addr}), DefaultNamespace)
}

func NewRateLimiterWithClient(c redis.UniversalClient, namespace string) *RateLimiter {
	return &RateLimiter{c: c, namespace: namespace, now: time.Now}
}

// Allow records one call against key and reports whether the number of calls
// within the trailing window, this one included, is at most limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	now := rl.now()
	k := rl.namespace + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(rl.seq.Add(1), 10)

	pipe := rl.c.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := card.Val()
	return n <= limit, n, nil
}
