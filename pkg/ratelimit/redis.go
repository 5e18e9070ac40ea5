// pkg/ratelimit/redis.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript implements the same sliding-window-with-block algorithm as
// MemoryStore.Check in a single atomic script. Times are unix millis.
// Returns {allowed, resetAtMs}.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local block = tonumber(ARGV[4])

local ws = tonumber(redis.call('HGET', key, 'ws'))
local count = tonumber(redis.call('HGET', key, 'count'))
if not ws then
  redis.call('HSET', key, 'ws', now, 'count', 1)
  redis.call('PEXPIRE', key, window + block)
  return {1, 0}
end
if count >= max and now < ws + block then
  return {0, ws + block}
end
if now - ws > window then
  redis.call('HSET', key, 'ws', now, 'count', 1)
  redis.call('PEXPIRE', key, window + block)
  return {1, 0}
end
if count >= max then
  return {0, ws + block}
end
redis.call('HINCRBY', key, 'count', 1)
return {1, 0}
`)

// RedisStore is a Store backed by a shared redis instance, for
// deployments running more than one gateway replica.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (r *RedisStore) Check(ctx context.Context, tenantID, identifier string, pol Policy) (Result, error) {
	key := "rl:" + tenantID + ":" + identifier
	now := r.now()
	vals, err := checkScript.Run(ctx, r.rdb, []string{key},
		now.UnixMilli(), pol.MaxAttempts, pol.Window.Milliseconds(), pol.BlockDuration.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit redis: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("ratelimit redis: unexpected reply %v", vals)
	}
	if vals[0] == 1 {
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false, ResetAt: time.UnixMilli(vals[1])}, nil
}
