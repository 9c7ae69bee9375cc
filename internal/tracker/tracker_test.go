package tracker_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/queue"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

func newTracker(t *testing.T) (*tracker.Tracker, *tracker.CircuitBreaker, *store.MemoryStore, *queue.MemoryQueue, *time.Time) {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryStore(logger)
	q := queue.NewMemoryQueue()
	cb := tracker.NewCircuitBreaker(logger, nil, 5, 15, 3)
	tr := tracker.NewTracker(logger, st, q, cb, nil, nil, 5*time.Minute)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	return tr, cb, st, q, &now
}

func openCommand(id string) *types.Command {
	return &types.Command{
		ID:   id,
		Type: types.CommandOpenTrade,
		Payload: types.CommandPayload{
			Account:   "acct1",
			Symbol:    "EURUSD",
			Timeframe: types.TimeframeH1,
			Direction: types.DirectionBuy,
		},
		Status: types.CommandStatusPending,
	}
}

func TestConfirmedTradeCompletesCommand(t *testing.T) {
	tr, cb, st, _, _ := newTracker(t)
	ctx := context.Background()

	cmd := openCommand("cmd-1")
	if err := st.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("InsertCommand failed: %v", err)
	}
	tr.Register(cmd, "sig-1")

	// Seed one prior failure; the confirmation must decay it.
	cb.RecordFailure("warmup")

	if err := st.InsertTrade(ctx, &types.Trade{
		ID: "trade-1", Account: "acct1", Symbol: "EURUSD",
		Status: types.TradeStatusOpen, CommandID: "cmd-1",
	}); err != nil {
		t.Fatalf("InsertTrade failed: %v", err)
	}

	tr.Reconcile(ctx)

	if n := tr.PendingCount(); n != 0 {
		t.Errorf("Expected empty pending map, got %d", n)
	}
	if cb.State().ConsecutiveFailures != 0 {
		t.Errorf("Success must decay failure counter, got %d", cb.State().ConsecutiveFailures)
	}
}

func TestRetriableFailureIsReenqueued(t *testing.T) {
	tr, cb, st, q, _ := newTracker(t)
	ctx := context.Background()

	cmd := openCommand("cmd-1")
	if err := st.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("InsertCommand failed: %v", err)
	}
	tr.Register(cmd, "sig-1")

	if err := st.SetCommandStatus(ctx, "cmd-1", types.CommandStatusFailed, "connection timeout"); err != nil {
		t.Fatalf("SetCommandStatus failed: %v", err)
	}

	tr.Reconcile(ctx)

	if n := q.Len("commands:acct1"); n != 1 {
		t.Fatalf("Expected re-enqueued command, queue len %d", n)
	}
	stored, err := st.GetCommand(ctx, "cmd-1")
	if err != nil {
		t.Fatalf("GetCommand failed: %v", err)
	}
	if stored.Status != types.CommandStatusPending {
		t.Errorf("Retried command must be reset to pending, got %s", stored.Status)
	}
	if tr.PendingCount() != 1 {
		t.Error("Retried command must stay tracked")
	}
	if cb.State().ConsecutiveFailures != 1 {
		t.Errorf("A retried attempt still counts as a failure, got %d", cb.State().ConsecutiveFailures)
	}
	if cb.Tripped() {
		t.Error("A single failure must not trip the breaker")
	}
}

func TestNonRetriableFailureCountsTowardBreaker(t *testing.T) {
	tr, cb, st, _, now := newTracker(t)
	ctx := context.Background()

	for i, id := range []string{"cmd-1", "cmd-2", "cmd-3"} {
		cmd := openCommand(id)
		if err := st.InsertCommand(ctx, cmd); err != nil {
			t.Fatalf("InsertCommand %d failed: %v", i, err)
		}
		tr.Register(cmd, "sig")
		if err := st.SetCommandStatus(ctx, id, types.CommandStatusFailed, "invalid stops"); err != nil {
			t.Fatalf("SetCommandStatus failed: %v", err)
		}
	}

	*now = now.Add(6 * time.Minute) // past timeout
	tr.Reconcile(ctx)

	if !cb.Tripped() {
		t.Fatal("3 non-retriable failures must trip the breaker")
	}
	if !strings.Contains(cb.State().Reason, "consecutive command failures") {
		t.Errorf("Unexpected trip reason: %q", cb.State().Reason)
	}
	if tr.PendingCount() != 0 {
		t.Errorf("Failed commands must leave the pending map, %d remain", tr.PendingCount())
	}
}

func TestRetriesAreCapped(t *testing.T) {
	tr, cb, st, q, now := newTracker(t)
	ctx := context.Background()

	cmd := openCommand("cmd-1")
	if err := st.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("InsertCommand failed: %v", err)
	}
	tr.Register(cmd, "sig-1")

	for attempt := 0; attempt < 3; attempt++ {
		if err := st.SetCommandStatus(ctx, "cmd-1", types.CommandStatusFailed, "requote"); err != nil {
			t.Fatalf("SetCommandStatus failed: %v", err)
		}
		*now = now.Add(6 * time.Minute)
		tr.Reconcile(ctx)
	}

	// Two retries then terminal failure.
	if n := q.Len("commands:acct1"); n != 2 {
		t.Errorf("Expected exactly 2 retries, got %d re-enqueues", n)
	}
	if tr.PendingCount() != 0 {
		t.Error("Exhausted command must be dropped from pending")
	}
	if cb.State().ConsecutiveFailures != 3 {
		t.Errorf("Each failed attempt must count, got %d", cb.State().ConsecutiveFailures)
	}
	if !cb.Tripped() {
		t.Error("Three failed attempts must trip the breaker")
	}
}

func TestPendingPastTimeoutFails(t *testing.T) {
	tr, cb, st, _, now := newTracker(t)
	ctx := context.Background()

	cmd := openCommand("cmd-1")
	if err := st.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("InsertCommand failed: %v", err)
	}
	tr.Register(cmd, "sig-1")

	*now = now.Add(6 * time.Minute)
	tr.Reconcile(ctx)

	if tr.PendingCount() != 0 {
		t.Error("Timed-out command must be dropped")
	}
	if cb.State().ConsecutiveFailures != 1 {
		t.Errorf("Timeout must count as failure, got %d", cb.State().ConsecutiveFailures)
	}
}

func TestRetriableClassification(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"connection timeout", true},
		{"Requote received", true},
		{"server busy, try again", true},
		{"temporarily unavailable", true},
		{"invalid stops", false},
		{"not enough money", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := tracker.Retriable(tc.msg); got != tc.want {
			t.Errorf("Retriable(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestBreakerResetClearsStateOnce(t *testing.T) {
	_, cb, _, _, _ := newTracker(t)

	cb.Trip("manual test trip")
	if !cb.Tripped() {
		t.Fatal("Breaker should be tripped")
	}

	// First reason wins on double trip.
	cb.Trip("second reason")
	if cb.State().Reason != "manual test trip" {
		t.Errorf("First trip reason must win, got %q", cb.State().Reason)
	}

	cb.Reset()
	if cb.Tripped() || cb.State().ConsecutiveFailures != 0 {
		t.Errorf("Reset must clear state, got %+v", cb.State())
	}
}

func TestAccountThresholdsTripBreaker(t *testing.T) {
	_, cb, _, _, _ := newTracker(t)

	tripped, reason := cb.EvaluateAccount(types.AccountState{
		Account:    "acct1",
		Balance:    decimal.NewFromInt(10000),
		Equity:     decimal.NewFromInt(9400),
		PeakEquity: decimal.NewFromInt(10000),
		DailyPnL:   decimal.NewFromInt(-600),
	})
	if !tripped {
		t.Fatal("6% daily loss must trip a 5% limit")
	}
	if !strings.Contains(reason, "daily loss") {
		t.Errorf("Unexpected reason: %q", reason)
	}
}
