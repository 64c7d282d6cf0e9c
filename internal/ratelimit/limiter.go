// Package ratelimit throttles credential-guessing and bulk account creation
// with fixed-window counters in Redis. Counters are shared across instances,
// so the limit holds for the whole deployment.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited is returned when the key exceeded its budget for the window.
	ErrLimited = errors.New("rate limited")
	// ErrUnavailable is returned when Redis cannot be reached. Callers decide
	// whether to fail open or closed.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Limiter counts events per key in a fixed window.
type Limiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// New creates a limiter allowing max events per window under the given key
// prefix.
func New(client *redis.Client, prefix string, max int64, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, max: max, window: window}
}

// Allow records one event for key and reports whether it stays within budget.
// The window starts with the first event and is enforced via key expiry.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > l.max {
		return ErrLimited
	}
	return nil
}

// Reset clears the counter for key, e.g. after a successful login.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
