package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix string
}

// Result reports the outcome of a single check-and-increment call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces per-(actor, action) budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ct"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *Limiter) key(actor, action string) string {
	return l.prefix + ":rl:" + action + ":" + actor
}

// CheckAndIncrement counts one attempt against the (actor, action) budget
// and reports whether it is still within limit. The counter TTL is set only
// for the first hit in the window.
func (l *Limiter) CheckAndIncrement(ctx context.Context, actor, action string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	key := l.key(actor, action)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		ttl = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}
	return result, nil
}

// Reset clears the counter for an (actor, action) pair. Used by tests and
// by operators after resolving an incident.
func (l *Limiter) Reset(ctx context.Context, actor, action string) error {
	if err := l.redis.Del(ctx, l.key(actor, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
