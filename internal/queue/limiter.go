package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter gates how often a pool may start a job.
type Limiter interface {
	// Allow takes a slot if one is free. When it is not, wait is how long
	// until the next slot opens.
	Allow(ctx context.Context) (ok bool, wait time.Duration, err error)
}

// Lua script for an atomic single-slot interval gate. The key holds the
// slot for the interval; only the caller that sets it may proceed.
const intervalGateLuaScript = `
local ok = redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2], "NX")
if ok then
    return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
    ttl = tonumber(ARGV[2])
end
return ttl
`

// RedisLimiter allows at most one job per interval across every process
// sharing the key.
type RedisLimiter struct {
	client   *redis.Client
	key      string
	interval time.Duration
	script   *redis.Script
}

// NewRedisLimiter creates an interval gate on key. One send per 10 seconds is
// NewRedisLimiter(client, "cadence:ratelimit:message-send", 10*time.Second).
func NewRedisLimiter(client *redis.Client, key string, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		key:      key,
		interval: interval,
		script:   redis.NewScript(intervalGateLuaScript),
	}
}

// Allow takes the slot if it is free.
func (l *RedisLimiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	ms, err := l.script.Run(ctx, l.client, []string{l.key}, "1", l.interval.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate limiter %s: %w", l.key, err)
	}
	if ms == 0 {
		return true, 0, nil
	}
	return false, time.Duration(ms) * time.Millisecond, nil
}

// Wait blocks until lim grants a slot or ctx is done.
func Wait(ctx context.Context, lim Limiter) error {
	for {
		ok, wait, err := lim.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
