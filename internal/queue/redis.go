package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueue pushes payloads onto per-key Redis lists consumed by the
// execution bridge.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue creates a Redis-backed command queue.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, prefix: "ngt:queue:"}
}

func (q *RedisQueue) Push(ctx context.Context, key string, payload []byte) error {
	if err := q.client.LPush(ctx, q.prefix+key, payload).Err(); err != nil {
		return fmt.Errorf("queue push %s: %w", key, err)
	}
	return nil
}
