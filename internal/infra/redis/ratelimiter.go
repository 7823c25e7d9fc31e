package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opencampus/delivery-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	windowSeconds            = 1
	// pollInterval bounds how long Wait sleeps between attempts.
	pollInterval = 20 * time.Millisecond
)

// allowScript counts the current window atomically. The key carries the
// window epoch, so expiry only has to garbage-collect stale windows.
var allowScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed per-second send limiter backed by Redis.
// Multiple scheduler instances share the same per-channel budget.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	script      *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
		script:      allowScript,
	}, nil
}

// Allow consumes one slot from the channel's current one-second window and
// reports whether it fit.
func (r *RedisRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := r.windowKey(channel)
	if err != nil {
		return false, err
	}

	result, err := r.script.Run(ctx, r.client, []string{key}, r.limitPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until a slot is available or the context ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, r.retryDelay()); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) windowKey(channel string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(channel))
	if name == "" {
		return "", fmt.Errorf("channel is required")
	}
	return fmt.Sprintf("delivery:ratelimit:%s:%d", name, r.now().UTC().Unix()), nil
}

// retryDelay aims for the next window boundary but never sleeps longer
// than pollInterval, so slots freed mid-window are picked up quickly.
func (r *RedisRateLimiter) retryDelay() time.Duration {
	now := r.now()
	untilNextWindow := now.Truncate(time.Second).Add(time.Second).Sub(now)
	if untilNextWindow <= 0 || untilNextWindow > pollInterval {
		return pollInterval
	}
	return untilNextWindow
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
