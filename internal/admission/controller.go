// Package admission runs the ordered gate chain that decides whether an
// active signal becomes a dispatched trade command.
package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/lock"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/queue"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/replacement"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/riskstate"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// Result is the admission verdict for one signal.
type Result struct {
	Allowed   bool
	Gate      string
	Reason    string
	CommandID string
	Volume    decimal.Decimal
}

// Controller runs the ordered admission gate chain and dispatches
// approved signals as OPEN_TRADE commands.
type Controller struct {
	logger     *zap.Logger
	cfg        *config.Config
	store      store.Store
	locker     lock.Locker
	queue      queue.Queue
	tracker    *tracker.Tracker
	breaker    *tracker.CircuitBreaker
	riskCtl    *riskstate.Controller
	replacer   *replacement.Manager
	ticks      market.TickProvider
	accounts   market.AccountProvider
	indicators market.IndicatorProvider
	calendar   market.NewsCalendar
	spread     *market.SpreadTracker
	decisions  *decision.Logger
	metrics    *metrics.Recorder

	Cooldowns    *CooldownTracker
	fingerprints *fingerprintCache
	clock        func() time.Time
}

// Deps bundles the controller's collaborators.
type Deps struct {
	Store      store.Store
	Locker     lock.Locker
	Queue      queue.Queue
	Tracker    *tracker.Tracker
	Breaker    *tracker.CircuitBreaker
	RiskCtl    *riskstate.Controller
	Replacer   *replacement.Manager
	Ticks      market.TickProvider
	Accounts   market.AccountProvider
	Indicators market.IndicatorProvider
	Calendar   market.NewsCalendar
	Spread     *market.SpreadTracker
	Decisions  *decision.Logger
	Metrics    *metrics.Recorder
}

// NewController creates an admission controller.
func NewController(logger *zap.Logger, cfg *config.Config, d Deps) *Controller {
	return &Controller{
		logger:       logger.Named("admission"),
		cfg:          cfg,
		store:        d.Store,
		locker:       d.Locker,
		queue:        d.Queue,
		tracker:      d.Tracker,
		breaker:      d.Breaker,
		riskCtl:      d.RiskCtl,
		replacer:     d.Replacer,
		ticks:        d.Ticks,
		accounts:     d.Accounts,
		indicators:   d.Indicators,
		calendar:     d.Calendar,
		spread:       d.Spread,
		decisions:    d.Decisions,
		metrics:      d.Metrics,
		Cooldowns:    NewCooldownTracker(time.Duration(cfg.Risk.SLHitCooldownMinutes) * time.Minute),
		fingerprints: newFingerprintCache(cfg.Engine.FingerprintCacheSize, cfg.Engine.AdmissionInterval),
		clock:        time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *Controller) SetClock(clock func() time.Time) { c.clock = clock }

// RunOnce evaluates every active signal not seen this cycle.
func (c *Controller) RunOnce(ctx context.Context) {
	signals, err := c.store.ActiveSignals(ctx)
	if err != nil {
		c.logger.Error("Failed to list active signals", zap.Error(err))
		return
	}

	for _, sig := range signals {
		if c.fingerprints.Seen(sig.ID) {
			continue
		}
		res, err := c.ProcessSignal(ctx, sig)
		if err != nil {
			c.logger.Warn("Admission error",
				zap.String("signalId", sig.ID),
				zap.String("symbol", sig.Symbol),
				zap.Error(err))
		}
		// A held lock means another worker owns the signal right now;
		// leave it unmarked so this cycle's outcome doesn't stick.
		if !res.Allowed && res.Gate == "lock" {
			continue
		}
		c.fingerprints.Mark(sig.ID)
	}
	c.Cooldowns.Evict()
}

// ProcessSignal runs the full gate chain on one signal. The distributed
// lock is taken just before the duplicate-position gate and held through
// dispatch or final rejection.
func (c *Controller) ProcessSignal(ctx context.Context, sig *types.Signal) (Result, error) {
	started := c.clock()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveGateChain(time.Since(started).Seconds())
		}
	}()

	acct, err := c.accounts.AccountState(ctx, sig.Account)
	if err != nil {
		// No account snapshot means no position sizing either.
		return c.reject(ctx, sig, rejected("account_state",
			fmt.Sprintf("account state unavailable: %v", err))), nil
	}

	preLock := []func(context.Context, *types.Signal, types.AccountState) GateResult{
		c.gateDrawdown,
		c.gateNewsPause,
		c.gateCircuitBreaker,
		c.gateMaxPositions,
		c.gateCorrelatedCap,
	}
	for _, gate := range preLock {
		if res := c.resolve(gate(ctx, sig, acct)); res.Status != GateAllowed {
			return c.reject(ctx, sig, res), nil
		}
	}

	// Serialize the (account, symbol, timeframe) critical section.
	// Lock failure is fail-open: gate 6 reads open trades directly and
	// remains the authoritative duplicate backstop.
	lockKey := sig.DedupKey()
	got, err := c.locker.Acquire(ctx, lockKey, c.cfg.Engine.LockTTL)
	if err != nil {
		c.logger.Warn("Lock service unavailable, proceeding fail-open",
			zap.String("key", lockKey), zap.Error(err))
		if c.metrics != nil {
			c.metrics.RecordLockFailOpen()
		}
	} else if !got {
		// Another worker owns the critical section; skip without a
		// decision row so it retries next cycle.
		return Result{Allowed: false, Gate: "lock", Reason: "signal lock held by another worker"}, nil
	} else {
		defer func() {
			if err := c.locker.Release(ctx, lockKey); err != nil {
				c.logger.Warn("Lock release failed", zap.String("key", lockKey), zap.Error(err))
			}
		}()
	}

	var riskGate riskstate.GateResult
	locked := []func(context.Context, *types.Signal, types.AccountState) GateResult{
		c.gateDuplicatePosition,
		c.gateSignalAge,
		c.gateCooldown,
		func(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
			res, g := c.gateSymbolRisk(ctx, sig)
			riskGate = g
			return res
		},
		c.gateRequiredFields,
		c.gateReplacement,
		c.gateSpread,
	}
	for _, gate := range locked {
		if res := c.resolve(gate(ctx, sig, acct)); res.Status != GateAllowed {
			return c.reject(ctx, sig, res), nil
		}
	}

	return c.approve(ctx, sig, acct, riskGate)
}

// resolve applies the gate's failure policy to an errored result.
func (c *Controller) resolve(res GateResult) GateResult {
	if res.Status != GateErrored {
		return res
	}
	switch c.policy(res.Gate) {
	case FailOpen:
		c.logger.Warn("Gate error, failing open",
			zap.String("gate", res.Gate), zap.Error(res.Err))
		return allowed(res.Gate)
	case FailTrip:
		c.breaker.Trip(fmt.Sprintf("%s gate error: %v", res.Gate, res.Err))
		return rejected(res.Gate, fmt.Sprintf("circuit breaker tripped: %s gate error", res.Gate))
	default:
		return rejected(res.Gate, fmt.Sprintf("gate check failed: %v", res.Err))
	}
}

func (c *Controller) policy(gate string) FailurePolicy {
	switch gate {
	case "lock":
		return FailOpen
	case "circuit_breaker":
		return FailTrip
	default:
		return FailClosed
	}
}

// --- gates, in chain order ---

func (c *Controller) gateDrawdown(_ context.Context, _ *types.Signal, acct types.AccountState) GateResult {
	const gate = "drawdown"
	if tripped, reason := c.breaker.EvaluateAccount(acct); tripped {
		return rejected(gate, reason)
	}
	return allowed(gate)
}

func (c *Controller) gateNewsPause(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "news_pause"
	if c.calendar == nil {
		return allowed(gate)
	}
	paused, event, err := c.calendar.TradingPaused(ctx, sig.Symbol)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err)
	}
	if paused {
		return rejected(gate, fmt.Sprintf("trading paused for news event: %s", event))
	}
	return allowed(gate)
}

func (c *Controller) gateCircuitBreaker(_ context.Context, _ *types.Signal, _ types.AccountState) GateResult {
	const gate = "circuit_breaker"
	if c.breaker.Tripped() {
		state := c.breaker.State()
		return rejected(gate, fmt.Sprintf("circuit breaker tripped: %s", state.Reason))
	}
	return allowed(gate)
}

func (c *Controller) gateMaxPositions(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "max_positions"
	trades, err := c.store.OpenTrades(ctx, sig.Account)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err)
	}
	if len(trades) >= c.cfg.Risk.MaxPositions {
		return rejected(gate, fmt.Sprintf("max open positions reached (%d/%d)",
			len(trades), c.cfg.Risk.MaxPositions))
	}
	return allowed(gate)
}

func (c *Controller) gateCorrelatedCap(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "correlated_cap"
	trades, err := c.store.OpenTrades(ctx, sig.Account)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err)
	}
	for group, symbols := range c.cfg.Correlation.Groups {
		if !contains(symbols, sig.Symbol) {
			continue
		}
		count := 0
		for _, t := range trades {
			if contains(symbols, t.Symbol) {
				count++
			}
		}
		if count >= c.cfg.Risk.MaxCorrelatedPositions {
			return rejected(gate, fmt.Sprintf("correlated group %q at cap (%d/%d)",
				group, count, c.cfg.Risk.MaxCorrelatedPositions))
		}
	}
	return allowed(gate)
}

func (c *Controller) gateDuplicatePosition(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "duplicate_position"
	trades, err := c.store.OpenTradesBySymbol(ctx, sig.Account, sig.Symbol)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err)
	}
	count := 0
	for _, t := range trades {
		if t.Timeframe == sig.Timeframe {
			count++
		}
	}
	if count >= c.cfg.Risk.MaxPositionsPerSymbolTF {
		return rejected(gate, fmt.Sprintf("position already open for %s %s",
			sig.Symbol, sig.Timeframe))
	}
	return allowed(gate)
}

func (c *Controller) gateSignalAge(_ context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "signal_age"
	maxAge := time.Duration(c.cfg.Risk.SignalMaxAgeMinutes) * time.Minute
	// Age exactly at the limit is still eligible.
	if age := sig.Age(c.clock()); age > maxAge {
		return rejected(gate, fmt.Sprintf("signal too old: %s exceeds %s",
			formatAge(age), formatAge(maxAge)))
	}
	return allowed(gate)
}

func (c *Controller) gateCooldown(_ context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "sl_cooldown"
	if active, remaining := c.Cooldowns.Active(sig.Account, sig.Symbol); active {
		return rejected(gate, fmt.Sprintf("stop-loss cooldown active for %s, %s remaining",
			sig.Symbol, remaining.Round(time.Second)))
	}
	return allowed(gate)
}

func (c *Controller) gateSymbolRisk(ctx context.Context, sig *types.Signal) (GateResult, riskstate.GateResult) {
	const gate = "symbol_risk"
	trend, err := c.indicators.HigherTimeframeTrend(ctx, sig.Symbol)
	if err != nil {
		return errored(gate, types.ErrKindTransient, fmt.Errorf("higher timeframe trend: %w", err)), riskstate.GateResult{}
	}
	res, err := c.riskCtl.Gate(ctx, sig, trend)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err), riskstate.GateResult{}
	}
	if !res.Allowed {
		return rejected(gate, res.Reason), res
	}
	return allowed(gate), res
}

func (c *Controller) gateRequiredFields(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "required_fields"
	reason := ""
	switch {
	case sig.Symbol == "" || sig.Timeframe == "" || sig.Account == "":
		reason = "missing symbol, timeframe or account"
	case sig.Direction != types.DirectionBuy && sig.Direction != types.DirectionSell:
		reason = fmt.Sprintf("invalid direction %q", sig.Direction)
	case sig.Confidence <= 0 || sig.Confidence > 100:
		reason = fmt.Sprintf("confidence %.1f out of range", sig.Confidence)
	case !sig.Entry.IsPositive() || !sig.StopLoss.IsPositive() || !sig.TakeProfit.IsPositive():
		reason = "entry, stop loss and take profit must be positive"
	case sig.Entry.Equal(sig.StopLoss):
		reason = "entry equals stop loss"
	}
	if reason != "" {
		// Malformed signals never become valid; retire them.
		if err := c.store.ExpireSignal(ctx, sig.ID, reason); err != nil {
			c.logger.Warn("Failed to expire malformed signal",
				zap.String("signalId", sig.ID), zap.Error(err))
		}
		res := rejected(gate, reason)
		res.Kind = types.ErrKindValidation
		return res
	}
	return allowed(gate)
}

func (c *Controller) gateReplacement(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "replacement"
	closed, err := c.replacer.EvaluateForSignal(ctx, sig)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err)
	}
	if closed > 0 {
		c.logger.Info("Replacement closes issued ahead of admission",
			zap.String("signalId", sig.ID), zap.Int("closed", closed))
	}
	return allowed(gate)
}

func (c *Controller) gateSpread(ctx context.Context, sig *types.Signal, _ types.AccountState) GateResult {
	const gate = "spread"
	tick, err := c.ticks.LastTick(ctx, sig.Symbol)
	if err != nil {
		return errored(gate, types.ErrKindTransient, err)
	}

	maxTickAge := time.Duration(c.cfg.Spread.MaxTickAgeSeconds) * time.Second
	if age := c.clock().Sub(tick.Time); age > maxTickAge {
		return rejected(gate, fmt.Sprintf("stale tick: %s old", age.Round(time.Second)))
	}

	current := tick.Spread()
	if avg, ok := c.spread.Average(sig.Symbol); ok {
		limit := avg.Mul(decimal.NewFromFloat(c.cfg.Spread.MaxAverageMultiple))
		if current.GreaterThan(limit) {
			return rejected(gate, fmt.Sprintf("spread %s exceeds %.1fx rolling average %s",
				current, c.cfg.Spread.MaxAverageMultiple, avg))
		}
	}

	class := market.ClassOf(sig.Symbol)
	if ceiling, ok := c.cfg.Spread.ClassCeilings[string(class)]; ok {
		if current.GreaterThan(decimal.NewFromFloat(ceiling)) {
			return rejected(gate, fmt.Sprintf("spread %s exceeds %s ceiling %v",
				current, class, ceiling))
		}
	}

	c.spread.Record(tick)
	return allowed(gate)
}

// --- approval path ---

func (c *Controller) approve(ctx context.Context, sig *types.Signal, acct types.AccountState, riskGate riskstate.GateResult) (Result, error) {
	volume := c.positionSize(sig, acct, riskGate.Multiplier)
	sl, tp, err := c.stops(ctx, sig, riskGate.Multiplier)
	if err != nil {
		// Indicator outage, not a bad order: reject fail-closed and
		// leave the signal active for the next cycle.
		res := rejected("order_validation", fmt.Sprintf("stop computation unavailable: %v", err))
		res.Kind = types.ErrKindTransient
		return c.reject(ctx, sig, res), nil
	}
	if reason := c.validateOrder(sig, sl, tp); reason != "" {
		return c.abortDispatch(ctx, sig, reason), nil
	}

	cmd := &types.Command{
		ID:   uuid.NewString(),
		Type: types.CommandOpenTrade,
		Payload: types.CommandPayload{
			Account:    sig.Account,
			Symbol:     sig.Symbol,
			Timeframe:  sig.Timeframe,
			Direction:  sig.Direction,
			Volume:     volume,
			Price:      sig.Entry,
			StopLoss:   sl,
			TakeProfit: tp,
			SignalID:   sig.ID,
			Comment:    fmt.Sprintf("auto conf=%.1f eff=%.1f", sig.Confidence, riskGate.EffectiveThreshold),
		},
		Status:    types.CommandStatusPending,
		CreatedAt: c.clock(),
	}

	if err := c.store.InsertCommand(ctx, cmd); err != nil {
		return Result{}, fmt.Errorf("insert command: %w", err)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Result{}, fmt.Errorf("marshal command: %w", err)
	}
	if err := c.queue.Push(ctx, "commands:"+sig.Account, payload); err != nil {
		return Result{}, fmt.Errorf("enqueue command: %w", err)
	}
	c.tracker.Register(cmd, sig.ID)

	if c.metrics != nil {
		c.metrics.RecordAdmission("approved")
		c.metrics.RecordCommand(string(types.CommandOpenTrade), "dispatched")
	}
	if c.decisions != nil {
		c.decisions.Approval(ctx, sig, fmt.Sprintf(
			"volume=%s sl=%s tp=%s effectiveThreshold=%.1f multiplier=%.2f commandId=%s",
			volume, sl, tp, riskGate.EffectiveThreshold, riskGate.Multiplier, cmd.ID))
	}

	c.logger.Info("Signal approved",
		zap.String("signalId", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("direction", string(sig.Direction)),
		zap.String("volume", volume.String()),
		zap.String("commandId", cmd.ID))

	return Result{Allowed: true, CommandID: cmd.ID, Volume: volume}, nil
}

// positionSize computes the risk-budgeted lot volume:
// clamp(riskAmount / (|entry-sl| * lotSize), min, max) * multiplier,
// re-clamped.
func (c *Controller) positionSize(sig *types.Signal, acct types.AccountState, multiplier float64) decimal.Decimal {
	riskAmount := acct.Balance.Mul(decimal.NewFromFloat(c.cfg.Risk.RiskPerTradePercent / 100))
	dist := sig.Entry.Sub(sig.StopLoss).Abs()
	lot := decimal.NewFromFloat(c.cfg.Risk.LotSize)
	if dist.IsZero() || lot.IsZero() {
		return decimal.NewFromFloat(c.cfg.Risk.MinVolume)
	}

	raw := riskAmount.Div(dist.Mul(lot))
	vol := clampDecimal(raw, c.cfg.Risk.MinVolume, c.cfg.Risk.MaxVolume)
	if multiplier > 0 {
		vol = vol.Mul(decimal.NewFromFloat(multiplier))
	}
	return clampDecimal(vol, c.cfg.Risk.MinVolume, c.cfg.Risk.MaxVolume).Round(2)
}

// stops prefers a trend-derived dynamic stop when it lies on the correct
// side of entry; otherwise scales the signal's original stop distance by
// the symbol's risk multiplier. Take profit stays as signalled.
func (c *Controller) stops(ctx context.Context, sig *types.Signal, multiplier float64) (decimal.Decimal, decimal.Decimal, error) {
	sl := sig.StopLoss
	tp := sig.TakeProfit

	dynamic, err := c.indicators.DynamicStop(ctx, sig.Symbol, sig.Timeframe, sig.Direction)
	if err != nil {
		return sl, tp, fmt.Errorf("dynamic stop: %w", err)
	}

	switch {
	case dynamic.IsPositive() && correctStopSide(sig.Direction, sig.Entry, dynamic):
		sl = dynamic
	case multiplier > 0 && multiplier != 1.0:
		dist := sig.Entry.Sub(sig.StopLoss).Abs().Mul(decimal.NewFromFloat(multiplier))
		if sig.Direction == types.DirectionBuy {
			sl = sig.Entry.Sub(dist)
		} else {
			sl = sig.Entry.Add(dist)
		}
	}
	return sl, tp, nil
}

func correctStopSide(dir types.Direction, entry, stop decimal.Decimal) bool {
	if dir == types.DirectionBuy {
		return stop.LessThan(entry)
	}
	return stop.GreaterThan(entry)
}

// validateOrder checks directional ordering, reward:risk and distance
// bounds. Returns "" when the order is dispatchable.
func (c *Controller) validateOrder(sig *types.Signal, sl, tp decimal.Decimal) string {
	entry := sig.Entry
	if sig.Direction == types.DirectionBuy {
		if !sl.LessThan(entry) || !tp.GreaterThan(entry) {
			return fmt.Sprintf("invalid BUY ordering: sl=%s entry=%s tp=%s", sl, entry, tp)
		}
	} else {
		if !sl.GreaterThan(entry) || !tp.LessThan(entry) {
			return fmt.Sprintf("invalid SELL ordering: sl=%s entry=%s tp=%s", sl, entry, tp)
		}
	}

	slDist := entry.Sub(sl).Abs()
	tpDist := tp.Sub(entry).Abs()
	if slDist.IsZero() {
		return "zero stop distance"
	}

	rr, _ := tpDist.Div(slDist).Float64()
	if rr < c.cfg.Risk.MinRewardRisk {
		return fmt.Sprintf("reward:risk %.2f below minimum %.2f", rr, c.cfg.Risk.MinRewardRisk)
	}

	hundred := decimal.NewFromInt(100)
	slPct, _ := slDist.Div(entry).Mul(hundred).Float64()
	if slPct < c.cfg.Risk.MinStopDistancePercent {
		return fmt.Sprintf("stop distance %.3f%% below minimum %.3f%%",
			slPct, c.cfg.Risk.MinStopDistancePercent)
	}
	tpPct, _ := tpDist.Div(entry).Mul(hundred).Float64()
	if tpPct > c.cfg.Risk.MaxTargetDistancePercent {
		return fmt.Sprintf("target distance %.3f%% beyond maximum %.3f%%",
			tpPct, c.cfg.Risk.MaxTargetDistancePercent)
	}
	return ""
}

// abortDispatch records a pre-dispatch validation failure. No command is
// created and the signal is not retried.
func (c *Controller) abortDispatch(ctx context.Context, sig *types.Signal, reason string) Result {
	if err := c.store.ExpireSignal(ctx, sig.ID, reason); err != nil {
		c.logger.Warn("Failed to expire signal after validation failure",
			zap.String("signalId", sig.ID), zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.RecordAdmission("rejected")
		c.metrics.RecordGateRejection("order_validation")
	}
	if c.decisions != nil {
		c.decisions.Rejection(ctx, sig, reason, "pre-dispatch order validation", types.ImpactMedium)
	}
	c.logger.Warn("Dispatch aborted by order validation",
		zap.String("signalId", sig.ID),
		zap.String("reason", reason))
	return Result{Allowed: false, Gate: "order_validation", Reason: reason}
}

func (c *Controller) reject(ctx context.Context, sig *types.Signal, res GateResult) Result {
	if c.metrics != nil {
		c.metrics.RecordAdmission("rejected")
		c.metrics.RecordGateRejection(res.Gate)
	}
	impact := types.ImpactLow
	switch res.Gate {
	case "drawdown", "circuit_breaker":
		impact = types.ImpactHigh
	case "required_fields":
		impact = types.ImpactMedium
	}
	if c.decisions != nil {
		c.decisions.Rejection(ctx, sig, res.Reason, "gate "+res.Gate, impact)
	}
	c.logger.Debug("Signal rejected",
		zap.String("signalId", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("gate", res.Gate),
		zap.String("reason", res.Reason))
	return Result{Allowed: false, Gate: res.Gate, Reason: res.Reason}
}

func contains(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
