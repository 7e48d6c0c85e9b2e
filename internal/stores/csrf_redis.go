package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the token only when its stored session matches.
// Running as a script makes check-and-delete atomic per token: of two
// concurrent consumers, exactly one sees the delete succeed.
//
// Returns 1 on success, 0 when missing, -1 on session mismatch.
var consumeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return 0
end
if stored ~= ARGV[1] then
	return -1
end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisCSRFStore is a [CSRFStore] on Redis, shared by every engine instance
// pointed at the same server. Expiry rides on the key TTL, so Sweep is a
// no-op here.
type RedisCSRFStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCSRFStore describes the newrediscsrfstore operation and its observable behavior.
//
// NewRedisCSRFStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisCSRFStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisCSRFStore(redisClient redis.UniversalClient, prefix string) *RedisCSRFStore {
	if prefix == "" {
		prefix = "acsrf"
	}
	return &RedisCSRFStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisCSRFStore) key(token string) string {
	return s.prefix + ":" + token
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCSRFStore) Save(ctx context.Context, token, sessionID string, ttl time.Duration, _ time.Time) error {
	if err := s.redis.Set(ctx, s.key(token), sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCSRFRedisUnavailable, err)
	}
	return nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCSRFStore) Validate(ctx context.Context, token, sessionID string, _ time.Time) error {
	stored, err := s.redis.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCSRFNotFound
		}
		return fmt.Errorf("%w: %v", ErrCSRFRedisUnavailable, err)
	}
	if stored != sessionID {
		return ErrCSRFMismatch
	}
	return nil
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCSRFStore) Consume(ctx context.Context, token, sessionID string, _ time.Time) error {
	outcome, err := consumeScript.Run(ctx, s.redis, []string{s.key(token)}, sessionID).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCSRFRedisUnavailable, err)
	}

	switch outcome {
	case 1:
		return nil
	case -1:
		return ErrCSRFMismatch
	default:
		return ErrCSRFNotFound
	}
}

// Sweep describes the sweep operation and its observable behavior.
//
// Sweep may return an error when input validation, dependency calls, or security checks fail.
// Sweep does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCSRFStore) Sweep(context.Context, time.Time) error {
	return nil
}
