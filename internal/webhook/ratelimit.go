package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles webhook deliveries per source. Advisory: the
// validator records violations but still processes the event.
type RateLimiter interface {
	Allow(ctx context.Context, source string) (bool, error)
}

// RedisRateLimiter applies a fixed one-minute window per source using
// INCR + EXPIRE. Fails open on cache errors.
type RedisRateLimiter struct {
	client    *redis.Client
	perMinute int
}

// NewRedisRateLimiter builds the limiter; perMinute <= 0 disables limiting.
func NewRedisRateLimiter(client *redis.Client, perMinute int) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, perMinute: perMinute}
}

// Allow reports whether the source is inside its window budget.
func (l *RedisRateLimiter) Allow(ctx context.Context, source string) (bool, error) {
	if l == nil || l.client == nil || l.perMinute <= 0 {
		return true, nil
	}
	key := "webhook:rl:v1:" + source
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true, err // fail-open on cache errors
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, time.Minute)
	}
	return cnt <= int64(l.perMinute), nil
}
