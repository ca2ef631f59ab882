package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowScript increments the fixed-window counter and stamps an
// expiry on first use, in one atomic server-side step.
// KEYS[1] = window key
// ARGV[1] = window ttl in seconds
var redisWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[1]))
end
return count
`)

// RedisLimiter implements Limiter on Redis so the window counter is shared
// across gateway replicas.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Increment(ctx context.Context, agentAddress, routeID string, at time.Time) (int64, error) {
	key := "ratelimit:" + WindowKey(agentAddress, routeID, at)

	// Keep the key for two window lengths so a boundary read never races
	// the expiry.
	res, err := redisWindowScript.Run(ctx, l.client, []string{key}, int((2 * time.Minute).Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("ratelimit: unexpected redis reply %T", res)
	}
	return count, nil
}
