package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only when the stored token matches, so a
// worker never releases a lock that expired and was re-acquired elsewhere.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker on a shared Redis instance using
// SET NX PX with a per-acquisition token.
type RedisLocker struct {
	client *redis.Client
	logger *zap.Logger
	prefix string

	mu     sync.Mutex
	tokens map[string]string // key -> token held by this process
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		logger: logger.Named("signal-lock"),
		prefix: "ngt:siglock:",
		tokens: make(map[string]string),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()

	l.logger.Debug("Lock acquired",
		zap.String("key", key),
		zap.Duration("ttl", ttl))
	return true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	if err := l.client.Eval(ctx, releaseScript, []string{l.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("lock release %s: %w", key, err)
	}
	return nil
}
