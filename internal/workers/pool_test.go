package workers_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/workers"
)

func TestDrainRunsAllTasks(t *testing.T) {
	p := workers.NewPool(zap.NewNop(), "test", 4, 16)
	p.Start(context.Background())
	defer p.Stop()

	var ran atomic.Int64
	tasks := make([]workers.Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}
	}

	p.Drain(context.Background(), tasks)

	if ran.Load() != 10 {
		t.Fatalf("Expected 10 tasks run, got %d", ran.Load())
	}
	if p.Completed() != 10 || p.Failed() != 0 {
		t.Errorf("Counters wrong: completed=%d failed=%d", p.Completed(), p.Failed())
	}
}

func TestFailedTaskCounted(t *testing.T) {
	p := workers.NewPool(zap.NewNop(), "test", 2, 8)
	p.Start(context.Background())
	defer p.Stop()

	p.Drain(context.Background(), []workers.Task{
		func(ctx context.Context) error { return fmt.Errorf("boom") },
		func(ctx context.Context) error { return nil },
	})

	if p.Failed() != 1 || p.Completed() != 1 {
		t.Errorf("Counters wrong: completed=%d failed=%d", p.Completed(), p.Failed())
	}
}

func TestPanicConfinedToTask(t *testing.T) {
	p := workers.NewPool(zap.NewNop(), "test", 2, 8)
	p.Start(context.Background())
	defer p.Stop()

	p.Drain(context.Background(), []workers.Task{
		func(ctx context.Context) error { panic("task panic") },
		func(ctx context.Context) error { return nil },
	})

	if p.Failed() != 1 || p.Completed() != 1 {
		t.Errorf("Panic must count as one failure: completed=%d failed=%d", p.Completed(), p.Failed())
	}
}

func TestSubmitWhenStopped(t *testing.T) {
	p := workers.NewPool(zap.NewNop(), "test", 2, 8)
	if err := p.Submit(func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("Submit before Start must fail")
	}
}
