package queue

import (
	"context"
	"sync"
)

// MemoryQueue collects pushed payloads in memory for tests and
// single-process runs.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string][][]byte
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string][][]byte)}
}

func (q *MemoryQueue) Push(ctx context.Context, key string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	q.items[key] = append(q.items[key], cp)
	return nil
}

// Drain returns and clears everything pushed under key.
func (q *MemoryQueue) Drain(key string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items[key]
	delete(q.items, key)
	return out
}

// Len returns the number of payloads pending under key.
func (q *MemoryQueue) Len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items[key])
}
