// Package lock provides the distributed signal lock serializing the
// (account, symbol, timeframe) critical section across workers.
package lock

import (
	"context"
	"time"
)

// Locker acquires and releases ephemeral, self-expiring locks. A failed
// Acquire means another worker holds the critical section; an error means
// the lock service itself is unavailable, which callers treat as
// fail-open because the duplicate-position gate remains the
// authoritative backstop.
type Locker interface {
	// Acquire tries to take the lock for key with the given TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees the lock if this process still holds it. Releasing
	// an expired or foreign lock is a no-op.
	Release(ctx context.Context, key string) error
}
