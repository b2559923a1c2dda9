package access

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps fixed-window counters in Redis so that several
// gateway instances share one quota per identity.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter allows limit requests per window for each identity.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, opts ...LimiterOption) *RedisLimiter {
	o := applyLimiterOptions(opts)
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    o.now,
		prefix: o.prefix,
	}
}

// Allow increments the counter of the current window. The counter key
// expires when the window ends.
func (l *RedisLimiter) Allow(ctx context.Context, identity string) (Decision, error) {
	start := windowStart(l.now(), l.window)
	resetAt := start.Add(l.window)
	d := Decision{Limit: l.limit, ResetAt: resetAt}

	key := l.buildKey(identity, start)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpireAt(ctx, key, resetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return d, fmt.Errorf("redis rate limit: %w", err)
	}

	count := int(incr.Val())
	d.Allowed = count <= l.limit
	d.Remaining = max(l.limit-count, 0)
	return d, nil
}

func (l *RedisLimiter) buildKey(identity string, start time.Time) string {
	return l.prefix + identity + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}
