package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker for single-process runs and tests.
// Entries self-expire on TTL like their Redis counterpart.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> expiry
	clock func() time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// SetClock overrides the time source for tests.
func (l *MemoryLocker) SetClock(clock func() time.Time) {
	l.clock = clock
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && exp.After(now) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
	return nil
}
