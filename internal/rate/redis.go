package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
var ErrRedisUnavailable = errors.New("rate limit redis unavailable")

// takeScript prunes, counts, and conditionally records one request in a
// single atomic step. The bucket is a sorted set scored by request time in
// microseconds; member uniqueness comes from the score plus a sequence
// argument so two requests in the same microsecond still count twice.
//
// KEYS[1] bucket key
// ARGV[1] now (µs), ARGV[2] window (µs), ARGV[3] limit, ARGV[4] member
//
// Returns {allowed, remaining, retry-after µs}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cutoff = now - window

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)

local count = redis.call("ZCARD", KEYS[1])
if count >= limit then
	local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
	local retry = 0
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
		if retry < 0 then retry = 0 end
	end
	return {0, 0, retry}
end

redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], math.ceil(window / 1000))
return {1, limit - count - 1, 0}
`)

// RedisStore is a [BucketStore] on Redis sorted sets, shared by every
// engine instance pointed at the same server.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore describes the newredisstore operation and its observable behavior.
//
// NewRedisStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "arl"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Take describes the take operation and its observable behavior.
//
// Take may return an error when input validation, dependency calls, or security checks fail.
// Take does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	nowMicro := now.UnixMicro()
	member := fmt.Sprintf("%d-%d", nowMicro, now.Nanosecond())

	raw, err := takeScript.Run(ctx, s.redis,
		[]string{s.prefix + ":" + key},
		nowMicro,
		window.Microseconds(),
		limit,
		member,
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	allowed, _ := raw[0].(int64)
	remaining, _ := raw[1].(int64)
	retryMicro, _ := raw[2].(int64)

	return Result{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMicro) * time.Microsecond,
	}, nil
}
