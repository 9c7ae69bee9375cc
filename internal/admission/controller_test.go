package admission_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/admission"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/lock"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/queue"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/replacement"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/riskstate"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

type fixture struct {
	ctrl    *admission.Controller
	store   *store.MemoryStore
	queue   *queue.MemoryQueue
	locker  *lock.MemoryLocker
	market  *market.State
	spread  *market.SpreadTracker
	breaker *tracker.CircuitBreaker
	cfg     *config.Config
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test swap dependencies before the controller is
// built.
func newFixtureWith(t *testing.T, mutate func(*admission.Deps)) *fixture {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.Default()

	st := store.NewMemoryStore(logger)
	q := queue.NewMemoryQueue()
	locker := lock.NewMemoryLocker()
	ms := market.NewState()
	spread := market.NewSpreadTracker()
	decisions := decision.NewLogger(st, logger)

	breaker := tracker.NewCircuitBreaker(logger, nil,
		cfg.Risk.MaxDailyLossPercent,
		cfg.Risk.MaxTotalDrawdownPercent,
		cfg.Risk.BreakerFailureThreshold)
	cmdTracker := tracker.NewTracker(logger, st, q, breaker, nil, decisions, cfg.Engine.CommandTimeout)
	riskCtl := riskstate.NewController(logger, st, decisions,
		cfg.Risk.MinAutotradeConfidence,
		cfg.Risk.PauseAfterConsecutiveLosses,
		cfg.Risk.ResumeAfterCooldownHours)
	replacer := replacement.NewManager(logger, st, q, cmdTracker, decisions, nil, cfg.Replacement)

	deps := admission.Deps{
		Store:      st,
		Locker:     locker,
		Queue:      q,
		Tracker:    cmdTracker,
		Breaker:    breaker,
		RiskCtl:    riskCtl,
		Replacer:   replacer,
		Ticks:      ms,
		Accounts:   ms,
		Indicators: ms,
		Calendar:   ms,
		Spread:     spread,
		Decisions:  decisions,
		Metrics:    nil,
	}
	if mutate != nil {
		mutate(&deps)
	}
	ctrl := admission.NewController(logger, cfg, deps)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ctrl.SetClock(func() time.Time { return now })

	ms.SetAccountState(types.AccountState{
		Account:    "acct1",
		Balance:    decimal.NewFromInt(10000),
		Equity:     decimal.NewFromInt(10000),
		PeakEquity: decimal.NewFromInt(10000),
		DailyPnL:   decimal.Zero,
	})
	ms.SetTick(types.Tick{
		Symbol: "EURUSD",
		Bid:    decimal.NewFromFloat(1.10000),
		Ask:    decimal.NewFromFloat(1.10010),
		Time:   now,
	})

	return &fixture{
		ctrl:    ctrl,
		store:   st,
		queue:   q,
		locker:  locker,
		market:  ms,
		spread:  spread,
		breaker: breaker,
		cfg:     cfg,
		now:     now,
	}
}

func buySignal(now time.Time) *types.Signal {
	return &types.Signal{
		ID:         "sig-1",
		Account:    "acct1",
		Symbol:     "EURUSD",
		Timeframe:  types.TimeframeH1,
		Direction:  types.DirectionBuy,
		Confidence: 75,
		Entry:      decimal.NewFromFloat(1.1000),
		StopLoss:   decimal.NewFromFloat(1.0950),
		TakeProfit: decimal.NewFromFloat(1.1100),
		Status:     types.SignalStatusActive,
		CreatedAt:  now,
	}
}

func TestApprovedSignalDispatchesCommand(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("Expected approval, got rejection at gate %s: %s", res.Gate, res.Reason)
	}
	if res.CommandID == "" {
		t.Fatal("No command id on approval")
	}

	// Risk 2% of 10000 = 200; |1.1000-1.0950| * lot 1000 = 5 per lot;
	// raw 40 clamps to the 1.0 max volume.
	if !res.Volume.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected clamped volume 1.0, got %s", res.Volume)
	}

	if n := f.queue.Len("commands:acct1"); n != 1 {
		t.Fatalf("Expected 1 queued command, got %d", n)
	}
}

func TestCommandFieldsMatchApproval(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("Expected approval, got: %s", res.Reason)
	}

	stored, err := f.store.GetCommand(context.Background(), res.CommandID)
	if err != nil {
		t.Fatalf("Stored command not found: %v", err)
	}

	payloads := f.queue.Drain("commands:acct1")
	if len(payloads) != 1 {
		t.Fatalf("Expected 1 queued payload, got %d", len(payloads))
	}
	var queued types.Command
	if err := json.Unmarshal(payloads[0], &queued); err != nil {
		t.Fatalf("Queued command does not decode: %v", err)
	}

	if queued.ID != stored.ID {
		t.Errorf("Queued id %s != stored id %s", queued.ID, stored.ID)
	}
	if queued.Payload.Symbol != sig.Symbol || queued.Payload.Direction != sig.Direction {
		t.Errorf("Symbol/direction mutated in flight: %+v", queued.Payload)
	}
	if !queued.Payload.StopLoss.Equal(stored.Payload.StopLoss) ||
		!queued.Payload.TakeProfit.Equal(stored.Payload.TakeProfit) {
		t.Errorf("SL/TP mutated between store and queue")
	}
	if queued.Payload.SignalID != sig.ID {
		t.Errorf("Expected signal id %s, got %s", sig.ID, queued.Payload.SignalID)
	}
}

func TestTrippedBreakerRejectsAdmissions(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		f.breaker.RecordFailure("test failure")
	}
	if !f.breaker.Tripped() {
		t.Fatal("Breaker should trip after 3 consecutive failures")
	}

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected rejection with tripped breaker")
	}
	if res.Gate != "circuit_breaker" {
		t.Errorf("Expected circuit_breaker gate, got %s", res.Gate)
	}
	if !contains(res.Reason, "circuit breaker") {
		t.Errorf("Reason should mention circuit breaker: %q", res.Reason)
	}
}

func TestConfidenceBoundaryAtThreshold(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)
	sig.Confidence = 60 // default threshold, neutral trend

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if !res.Allowed {
		t.Errorf("Confidence equal to threshold must pass, rejected at %s: %s", res.Gate, res.Reason)
	}
}

func TestConfidenceBelowThresholdRejected(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)
	sig.Confidence = 59.9

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected rejection below threshold")
	}
	if res.Gate != "symbol_risk" {
		t.Errorf("Expected symbol_risk gate, got %s", res.Gate)
	}
}

func TestSignalAgeBoundary(t *testing.T) {
	f := newFixture(t)

	atLimit := buySignal(f.now.Add(-15 * time.Minute))
	res, err := f.ctrl.ProcessSignal(context.Background(), atLimit)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if !res.Allowed {
		t.Errorf("Age exactly at limit must be eligible, rejected at %s: %s", res.Gate, res.Reason)
	}

	f2 := newFixture(t)
	tooOld := buySignal(f2.now.Add(-15*time.Minute - time.Second))
	res, err = f2.ctrl.ProcessSignal(context.Background(), tooOld)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected rejection past age limit")
	}
	if res.Gate != "signal_age" {
		t.Errorf("Expected signal_age gate, got %s", res.Gate)
	}
}

func TestDuplicatePositionRejected(t *testing.T) {
	f := newFixture(t)
	if err := f.store.InsertTrade(context.Background(), &types.Trade{
		ID:        "trade-1",
		Account:   "acct1",
		Symbol:    "EURUSD",
		Timeframe: types.TimeframeH1,
		Direction: types.DirectionBuy,
		Status:    types.TradeStatusOpen,
		OpenTime:  f.now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("InsertTrade failed: %v", err)
	}

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected duplicate-position rejection")
	}
	if res.Gate != "duplicate_position" {
		t.Errorf("Expected duplicate_position gate, got %s", res.Gate)
	}
}

func TestRejectionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.store.InsertTrade(context.Background(), &types.Trade{
		ID:        "trade-1",
		Account:   "acct1",
		Symbol:    "EURUSD",
		Timeframe: types.TimeframeH1,
		Direction: types.DirectionBuy,
		Status:    types.TradeStatusOpen,
		OpenTime:  f.now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("InsertTrade failed: %v", err)
	}

	first, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("First ProcessSignal failed: %v", err)
	}
	second, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("Second ProcessSignal failed: %v", err)
	}

	if first.Allowed != second.Allowed || first.Gate != second.Gate || first.Reason != second.Reason {
		t.Errorf("Same signal, same state, different verdicts: %+v vs %+v", first, second)
	}
}

func TestHeldLockSkipsWithoutDispatch(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)

	got, err := f.locker.Acquire(context.Background(), sig.DedupKey(), time.Minute)
	if err != nil || !got {
		t.Fatalf("Pre-acquire failed: got=%v err=%v", got, err)
	}

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected skip while lock is held elsewhere")
	}
	if res.Gate != "lock" {
		t.Errorf("Expected lock gate, got %s", res.Gate)
	}
	if n := f.queue.Len("commands:acct1"); n != 0 {
		t.Errorf("No command should be dispatched, got %d", n)
	}
}

func TestNewsPauseRejects(t *testing.T) {
	f := newFixture(t)
	f.market.SetNewsPause("EURUSD", "ECB rate decision")

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected news-pause rejection")
	}
	if res.Gate != "news_pause" || !contains(res.Reason, "ECB rate decision") {
		t.Errorf("Unexpected rejection: gate=%s reason=%q", res.Gate, res.Reason)
	}
}

func TestStopLossCooldownRejects(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Cooldowns.SetClock(func() time.Time { return f.now })
	f.ctrl.Cooldowns.Record("acct1", "EURUSD")

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected cooldown rejection")
	}
	if res.Gate != "sl_cooldown" {
		t.Errorf("Expected sl_cooldown gate, got %s", res.Gate)
	}
}

func TestWideSpreadRejects(t *testing.T) {
	f := newFixture(t)
	// Forex class ceiling is 0.0005; this spread is 0.0010.
	f.market.SetTick(types.Tick{
		Symbol: "EURUSD",
		Bid:    decimal.NewFromFloat(1.1000),
		Ask:    decimal.NewFromFloat(1.1010),
		Time:   f.now,
	})

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected spread rejection")
	}
	if res.Gate != "spread" {
		t.Errorf("Expected spread gate, got %s", res.Gate)
	}
}

func TestStaleTickRejects(t *testing.T) {
	f := newFixture(t)
	f.market.SetTick(types.Tick{
		Symbol: "EURUSD",
		Bid:    decimal.NewFromFloat(1.10000),
		Ask:    decimal.NewFromFloat(1.10010),
		Time:   f.now.Add(-2 * time.Minute),
	})

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed || res.Gate != "spread" {
		t.Errorf("Expected stale-tick spread rejection, got %+v", res)
	}
	if !contains(res.Reason, "stale tick") {
		t.Errorf("Reason should mention stale tick: %q", res.Reason)
	}
}

func TestIncompleteSignalExpired(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)
	sig.TakeProfit = decimal.Zero
	if err := f.store.InsertSignal(context.Background(), sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed || res.Gate != "required_fields" {
		t.Fatalf("Expected required_fields rejection, got %+v", res)
	}

	stored, err := f.store.GetSignal(context.Background(), sig.ID)
	if err != nil {
		t.Fatalf("GetSignal failed: %v", err)
	}
	if stored.Status != types.SignalStatusExpired {
		t.Errorf("Malformed signal should be expired, status %s", stored.Status)
	}
}

func TestPoorRewardRiskAbortsDispatch(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)
	sig.TakeProfit = decimal.NewFromFloat(1.1020) // RR 0.4 on a 50-pip stop
	if err := f.store.InsertSignal(context.Background(), sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected order-validation abort")
	}
	if res.Gate != "order_validation" {
		t.Errorf("Expected order_validation, got %s", res.Gate)
	}
	if n := f.queue.Len("commands:acct1"); n != 0 {
		t.Errorf("No command may exist after validation failure, got %d", n)
	}
}

func TestDailyLossLimitTripsAndRejects(t *testing.T) {
	f := newFixture(t)
	f.market.SetAccountState(types.AccountState{
		Account:    "acct1",
		Balance:    decimal.NewFromInt(10000),
		Equity:     decimal.NewFromInt(9400),
		PeakEquity: decimal.NewFromInt(10000),
		DailyPnL:   decimal.NewFromInt(-600), // 6% > 5% limit
	})

	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed || res.Gate != "drawdown" {
		t.Fatalf("Expected drawdown rejection, got %+v", res)
	}
	if !f.breaker.Tripped() {
		t.Error("Daily loss breach must trip the breaker")
	}
}

func TestCooldownTrackerExpiry(t *testing.T) {
	ct := admission.NewCooldownTracker(30 * time.Minute)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ct.SetClock(func() time.Time { return now })

	ct.Record("acct1", "EURUSD")
	if active, _ := ct.Active("acct1", "EURUSD"); !active {
		t.Fatal("Cooldown should be active right after a hit")
	}

	now = now.Add(31 * time.Minute)
	if active, _ := ct.Active("acct1", "EURUSD"); active {
		t.Fatal("Cooldown should expire after its TTL")
	}
}

func TestPositionSizeClampedToMinimum(t *testing.T) {
	f := newFixture(t)
	f.market.SetTick(types.Tick{
		Symbol: "BTCUSD",
		Bid:    decimal.NewFromFloat(25000.0),
		Ask:    decimal.NewFromFloat(25000.5),
		Time:   f.now,
	})

	// Risk budget 200 over a 50-point stop at lot size 1000 gives a raw
	// volume of 0.004, below the 0.01 floor.
	sig := buySignal(f.now)
	sig.Symbol = "BTCUSD"
	sig.Entry = decimal.NewFromFloat(25000)
	sig.StopLoss = decimal.NewFromFloat(24950)
	sig.TakeProfit = decimal.NewFromFloat(25100)

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("Expected approval, got rejection at gate %s: %s", res.Gate, res.Reason)
	}
	if !res.Volume.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("Expected volume clamped to 0.01, got %s", res.Volume)
	}
}

func TestSpreadAverageBoundary(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 100; i++ {
		f.spread.Record(types.Tick{
			Symbol: "EURUSD",
			Bid:    decimal.NewFromFloat(1.10000),
			Ask:    decimal.NewFromFloat(1.10010), // spread 0.0001
		})
	}

	// Exactly 3x the rolling average is still admissible.
	f.market.SetTick(types.Tick{
		Symbol: "EURUSD",
		Bid:    decimal.NewFromFloat(1.10000),
		Ask:    decimal.NewFromFloat(1.10030),
		Time:   f.now,
	})
	res, err := f.ctrl.ProcessSignal(context.Background(), buySignal(f.now))
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("Spread at exactly 3x average must pass, rejected at %s: %s", res.Gate, res.Reason)
	}

	// Just above 3x rejects even though the class ceiling would allow it.
	f.market.SetTick(types.Tick{
		Symbol: "EURUSD",
		Bid:    decimal.NewFromFloat(1.10000),
		Ask:    decimal.NewFromFloat(1.10031),
		Time:   f.now,
	})
	sig := buySignal(f.now)
	sig.ID = "sig-2"
	res, err = f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed || res.Gate != "spread" {
		t.Fatalf("Expected spread rejection above 3x average, got %+v", res)
	}
	if !contains(res.Reason, "rolling average") {
		t.Errorf("Rejection must cite the rolling average, got %q", res.Reason)
	}
}

func TestHeldLockRetriedOnNextCycle(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(f.now)
	if err := f.store.InsertSignal(context.Background(), sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	got, err := f.locker.Acquire(context.Background(), sig.DedupKey(), time.Minute)
	if err != nil || !got {
		t.Fatalf("Pre-acquire failed: got=%v err=%v", got, err)
	}

	f.ctrl.RunOnce(context.Background())
	if n := f.queue.Len("commands:acct1"); n != 0 {
		t.Fatalf("Locked signal must not dispatch, got %d commands", n)
	}

	if err := f.locker.Release(context.Background(), sig.DedupKey()); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	f.ctrl.RunOnce(context.Background())
	if n := f.queue.Len("commands:acct1"); n != 1 {
		t.Fatalf("Freed signal must dispatch on the next cycle, got %d commands", n)
	}
}

type downDynamicStops struct {
	market.IndicatorProvider
}

func (downDynamicStops) DynamicStop(context.Context, string, types.Timeframe, types.Direction) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("indicator service unavailable")
}

func TestDynamicStopOutageKeepsSignalActive(t *testing.T) {
	f := newFixtureWith(t, func(d *admission.Deps) {
		d.Indicators = downDynamicStops{IndicatorProvider: d.Indicators}
	})
	sig := buySignal(f.now)
	if err := f.store.InsertSignal(context.Background(), sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	res, err := f.ctrl.ProcessSignal(context.Background(), sig)
	if err != nil {
		t.Fatalf("ProcessSignal failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("Expected rejection while the stop provider is down")
	}
	if n := f.queue.Len("commands:acct1"); n != 0 {
		t.Errorf("No command may dispatch without stops, got %d", n)
	}

	stored, err := f.store.GetSignal(context.Background(), sig.ID)
	if err != nil {
		t.Fatalf("GetSignal failed: %v", err)
	}
	if stored.Status != types.SignalStatusActive {
		t.Errorf("Transient outage must not expire the signal, status %s", stored.Status)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
