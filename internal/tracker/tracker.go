package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/queue"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

const maxRetries = 2

// retriableKeywords classify downstream errors worth retrying. Anything
// else counts straight toward the circuit breaker.
var retriableKeywords = []string{
	"timeout", "timed out", "connection", "temporar", "unavailable",
	"busy", "requote", "try again",
}

// Retriable reports whether an execution error message is worth retrying.
func Retriable(errMsg string) bool {
	msg := strings.ToLower(errMsg)
	for _, kw := range retriableKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

type pendingCommand struct {
	SignalID   string
	Symbol     string
	Type       types.CommandType
	CreatedAt  time.Time
	TimeoutAt  time.Time
	RetryCount int
}

// Tracker keeps the in-memory map of dispatched commands awaiting
// downstream confirmation. The map is a best-effort cache: losing it on
// restart only delays failure accounting for in-flight commands.
type Tracker struct {
	mu        sync.Mutex
	logger    *zap.Logger
	store     store.Store
	queue     queue.Queue
	breaker   *CircuitBreaker
	metrics   *metrics.Recorder
	decisions *decision.Logger

	timeout time.Duration
	pending map[string]*pendingCommand
	clock   func() time.Time
}

// NewTracker creates a command execution tracker.
func NewTracker(logger *zap.Logger, st store.Store, q queue.Queue, cb *CircuitBreaker, rec *metrics.Recorder, dl *decision.Logger, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Tracker{
		logger:    logger.Named("command-tracker"),
		store:     st,
		queue:     q,
		breaker:   cb,
		metrics:   rec,
		decisions: dl,
		timeout:   timeout,
		pending:   make(map[string]*pendingCommand),
		clock:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(clock func() time.Time) { t.clock = clock }

// Register starts tracking a freshly dispatched command.
func (t *Tracker) Register(cmd *types.Command, signalID string) {
	now := t.clock()

	t.mu.Lock()
	t.pending[cmd.ID] = &pendingCommand{
		SignalID:  signalID,
		Symbol:    cmd.Payload.Symbol,
		Type:      cmd.Type,
		CreatedAt: now,
		TimeoutAt: now.Add(t.timeout),
	}
	size := len(t.pending)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.SetPendingCommands(size)
	}
	t.logger.Debug("Command registered",
		zap.String("commandId", cmd.ID),
		zap.String("type", string(cmd.Type)),
		zap.String("symbol", cmd.Payload.Symbol))
}

// PendingCount returns the number of commands awaiting confirmation.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Reconcile runs one reconciliation pass over all pending commands.
func (t *Tracker) Reconcile(ctx context.Context) {
	t.mu.Lock()
	snapshot := make(map[string]pendingCommand, len(t.pending))
	for id, pc := range t.pending {
		snapshot[id] = *pc
	}
	t.mu.Unlock()

	now := t.clock()
	for id, pc := range snapshot {
		t.reconcileOne(ctx, id, pc, now)
	}

	t.mu.Lock()
	size := len(t.pending)
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.SetPendingCommands(size)
	}
}

func (t *Tracker) reconcileOne(ctx context.Context, id string, pc pendingCommand, now time.Time) {
	// A trade referencing the command id is confirmation of success.
	if _, err := t.store.TradeByCommandID(ctx, id); err == nil {
		t.complete(ctx, id, pc)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		t.logger.Warn("Trade lookup failed, retrying next pass",
			zap.String("commandId", id), zap.Error(err))
		return
	}

	cmd, err := t.store.GetCommand(ctx, id)
	if err != nil {
		t.logger.Warn("Command lookup failed, retrying next pass",
			zap.String("commandId", id), zap.Error(err))
		return
	}

	switch cmd.Status {
	case types.CommandStatusCompleted:
		// Completed but trade row not visible yet; wait for it unless
		// the timeout has long passed.
		if now.After(pc.TimeoutAt) {
			t.complete(ctx, id, pc)
		}
	case types.CommandStatusFailed:
		if !now.After(pc.TimeoutAt) && Retriable(cmd.Error) {
			// Fast retry path: the bridge already reported the failure.
			t.retryOrFail(ctx, cmd, pc)
			return
		}
		if now.After(pc.TimeoutAt) {
			t.retryOrFail(ctx, cmd, pc)
		}
	case types.CommandStatusPending:
		if now.After(pc.TimeoutAt) {
			// No terminal status past the timeout: downstream likely
			// disconnected. Counts as a failure.
			t.fail(ctx, id, pc, "command timed out with no terminal status")
		}
	}
}

func (t *Tracker) complete(ctx context.Context, id string, pc pendingCommand) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()

	t.breaker.RecordSuccess()
	if t.metrics != nil {
		t.metrics.RecordCommand(string(pc.Type), "completed")
	}
	t.logger.Info("Command confirmed",
		zap.String("commandId", id),
		zap.String("symbol", pc.Symbol))
}

func (t *Tracker) retryOrFail(ctx context.Context, cmd *types.Command, pc pendingCommand) {
	// Every failed attempt counts toward the breaker, retried or not;
	// an eventual success decays the counter.
	t.breaker.RecordFailure(pc.Symbol)

	if Retriable(cmd.Error) && pc.RetryCount < maxRetries {
		t.retry(ctx, cmd, pc)
		return
	}
	t.drop(ctx, cmd.ID, pc, cmd.Error)
}

func (t *Tracker) retry(ctx context.Context, cmd *types.Command, pc pendingCommand) {
	now := t.clock()

	if err := t.store.SetCommandStatus(ctx, cmd.ID, types.CommandStatusPending, ""); err != nil {
		t.logger.Warn("Failed to reset command for retry",
			zap.String("commandId", cmd.ID), zap.Error(err))
		return
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		t.logger.Error("Failed to marshal command for retry",
			zap.String("commandId", cmd.ID), zap.Error(err))
		return
	}
	if err := t.queue.Push(ctx, "commands:"+cmd.Payload.Account, payload); err != nil {
		t.logger.Warn("Failed to re-enqueue command",
			zap.String("commandId", cmd.ID), zap.Error(err))
		return
	}

	t.mu.Lock()
	if live, ok := t.pending[cmd.ID]; ok {
		live.RetryCount++
		live.TimeoutAt = now.Add(t.timeout)
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordRetry()
	}
	t.logger.Info("Command re-enqueued",
		zap.String("commandId", cmd.ID),
		zap.Int("attempt", pc.RetryCount+1),
		zap.String("lastError", cmd.Error))
}

func (t *Tracker) fail(ctx context.Context, id string, pc pendingCommand, reason string) {
	t.breaker.RecordFailure(pc.Symbol)
	t.drop(ctx, id, pc, reason)
}

// drop removes the command and records the terminal failure. The
// breaker counter is the caller's responsibility.
func (t *Tracker) drop(ctx context.Context, id string, pc pendingCommand, reason string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordCommand(string(pc.Type), "failed")
	}
	if t.decisions != nil {
		t.decisions.Record(ctx, &types.DecisionLog{
			DecisionType:      decision.TypeExecution,
			Decision:          "failed",
			PrimaryReason:     reason,
			DetailedReasoning: "command " + id + " exhausted retries or timed out",
			ImpactLevel:       types.ImpactHigh,
			Symbol:            pc.Symbol,
		})
	}
	t.logger.Error("Command failed",
		zap.String("commandId", id),
		zap.String("symbol", pc.Symbol),
		zap.String("reason", reason),
		zap.Int("retries", pc.RetryCount))
}
