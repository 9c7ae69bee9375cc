// Package workers provides the bounded task pool used for per-account
// maintenance work. Panics in a task are confined to that task.
package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of pool work.
type Task func(ctx context.Context) error

// ErrQueueFull is returned by Submit when the task queue is saturated.
var ErrQueueFull = fmt.Errorf("worker pool queue full")

// Pool runs submitted tasks on a fixed set of goroutines. Tasks that
// cannot be queued are rejected rather than blocking the caller; the
// loops that feed the pool retry on their next tick.
type Pool struct {
	logger     *zap.Logger
	name       string
	numWorkers int
	queueSize  int
	tasks      chan Task
	wg         sync.WaitGroup
	running    atomic.Bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a stopped pool with the given parallelism and queue
// depth. Call Start before submitting.
func NewPool(logger *zap.Logger, name string, numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		logger:     logger.Named("pool-" + name),
		name:       name,
		numWorkers: numWorkers,
		queueSize:  queueSize,
	}
}

// Start launches the worker goroutines. A stopped pool may be started
// again.
func (p *Pool) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.tasks = make(chan Task, p.queueSize)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.logger.Debug("Worker pool started", zap.Int("workers", p.numWorkers))
}

// Submit queues a task without blocking.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return fmt.Errorf("worker pool %s not running", p.name)
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain submits all tasks and waits for this batch to finish. Tasks
// rejected by a full queue count as failures.
func (p *Pool) Drain(ctx context.Context, tasks []Task) {
	var batch sync.WaitGroup
	for _, task := range tasks {
		task := task
		batch.Add(1)
		err := p.Submit(func(ctx context.Context) error {
			defer batch.Done()
			return task(ctx)
		})
		if err != nil {
			batch.Done()
			p.failed.Add(1)
			p.logger.Warn("Task rejected", zap.Error(err))
		}
	}
	batch.Wait()
}

// Stop closes the queue and waits for in-flight tasks.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
	p.logger.Debug("Worker pool stopped",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()))
}

// Completed returns the count of tasks that finished without error.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// Failed returns the count of tasks that errored, panicked or were
// rejected.
func (p *Pool) Failed() int64 { return p.failed.Load() }

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		if err := p.execute(ctx, task); err != nil {
			p.failed.Add(1)
			p.logger.Warn("Task failed", zap.Error(err))
			continue
		}
		p.completed.Add(1)
	}
}

func (p *Pool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			p.logger.Error("Task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	start := time.Now()
	err = task(ctx)
	if d := time.Since(start); d > 5*time.Second {
		p.logger.Warn("Slow task", zap.Duration("duration", d))
	}
	return err
}
