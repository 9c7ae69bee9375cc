package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/lock"
)

func TestAcquireHeldRelease(t *testing.T) {
	l := lock.NewMemoryLocker()
	ctx := context.Background()

	got, err := l.Acquire(ctx, "acct1:EURUSD:H1", time.Minute)
	if err != nil || !got {
		t.Fatalf("First acquire failed: got=%v err=%v", got, err)
	}

	got, err = l.Acquire(ctx, "acct1:EURUSD:H1", time.Minute)
	if err != nil {
		t.Fatalf("Second acquire errored: %v", err)
	}
	if got {
		t.Fatal("Held lock must not be re-acquired")
	}

	// A different key is an independent critical section.
	got, err = l.Acquire(ctx, "acct1:EURUSD:H4", time.Minute)
	if err != nil || !got {
		t.Fatalf("Distinct key acquire failed: got=%v err=%v", got, err)
	}

	if err := l.Release(ctx, "acct1:EURUSD:H1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	got, err = l.Acquire(ctx, "acct1:EURUSD:H1", time.Minute)
	if err != nil || !got {
		t.Fatalf("Acquire after release failed: got=%v err=%v", got, err)
	}
}

func TestLockExpiresAfterTTL(t *testing.T) {
	l := lock.NewMemoryLocker()
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	if got, _ := l.Acquire(ctx, "k", 30*time.Second); !got {
		t.Fatal("First acquire should succeed")
	}

	now = now.Add(29 * time.Second)
	if got, _ := l.Acquire(ctx, "k", 30*time.Second); got {
		t.Fatal("Lock must still be held before TTL expiry")
	}

	now = now.Add(2 * time.Second)
	if got, _ := l.Acquire(ctx, "k", 30*time.Second); !got {
		t.Fatal("Expired lock must be acquirable")
	}
}

func TestReleaseUnknownKeyIsNoop(t *testing.T) {
	l := lock.NewMemoryLocker()
	if err := l.Release(context.Background(), "never-held"); err != nil {
		t.Fatalf("Releasing an unheld key must not error: %v", err)
	}
}

func TestConcurrentAcquireGrantsExactlyOne(t *testing.T) {
	l := lock.NewMemoryLocker()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := l.Acquire(ctx, "acct1:EURUSD:H1", time.Minute)
			if err != nil {
				t.Errorf("Acquire errored: %v", err)
				return
			}
			if got {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if granted != 1 {
		t.Fatalf("Exactly one worker may hold the lock, %d did", granted)
	}
}
