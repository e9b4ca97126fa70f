package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounters is a CounterStore backed by a shared Redis instance, for
// deployments running more than one replica of the gate. The window lives
// as a key TTL set on the first hit.
type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func (c *RedisCounters) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	rkey := "ratelimit:" + key

	count, err := c.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		if err := c.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return 0, err
		}
	}

	return int(count), nil
}
