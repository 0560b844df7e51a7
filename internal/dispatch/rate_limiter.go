package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript atomically checks the current second's send counter
// against the ceiling and increments it when under. Returns 1 when the
// caller may send, 0 when the bucket is full.
const rateLimitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])

local current = tonumber(redis.call('GET', key) or '0')
if current >= limit then
    return 0
end

redis.call('INCR', key)
redis.call('EXPIRE', key, 2)
return 1
`

// RateLimiter enforces a per-second send ceiling shared across dispatcher
// instances through Redis. The ceiling is supplied per call because each
// campaign may run at its own rate.
type RateLimiter struct {
	client *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a limiter on the given Redis client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
	}
}

// Allow reports whether one more send fits in the current second's bucket,
// consuming a slot when it does. A ceiling of zero or less disables
// limiting.
func (r *RateLimiter) Allow(ctx context.Context, perSecond int) (bool, error) {
	if perSecond <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("dispatch:rate:%d", time.Now().Unix())
	res, err := r.script.Run(ctx, r.client, []string{key}, perSecond).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return res == 1, nil
}

// Wait blocks until a send slot is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context, perSecond int) error {
	for {
		ok, err := r.Allow(ctx, perSecond)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
