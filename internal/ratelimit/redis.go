package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares the failure counters across instances through Redis.
type RedisLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

// NewRedis returns a limiter allowing maxAttempts failures per window.
func NewRedis(client redis.UniversalClient, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, username string) error {
	count, err := l.redis.Get(ctx, keyFor(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count >= int64(l.maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) Failure(ctx context.Context, username string) error {
	key := keyFor(username)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	// Fixed window: only the first failure sets the TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, keyFor(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Ping reports whether Redis is reachable; used by readiness.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}
