package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisStore shares counters between service instances.
type RedisStore struct {
	Client  redis.UniversalClient
	Prefix  string
	Timeout time.Duration
}

// NewRedisStore builds a store with the "rl:" key prefix.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		Client:  client,
		Prefix:  "rl:",
		Timeout: 2 * time.Second,
	}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if s.Client == nil {
		return 0, time.Time{}, errors.New("ratelimit: redis client not configured")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	res, err := incrScript.Run(ctx, s.Client, []string{s.Prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count, time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond), nil
}
