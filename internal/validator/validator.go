// Package validator continuously re-checks active signals against their
// creation-time indicator snapshots and invalidates them on first flip.
package validator

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// Validator runs the active -> {valid, expired} state machine. A signal
// survives a pass untouched (valid, no-op) or is expired terminally.
type Validator struct {
	logger     *zap.Logger
	store      store.SignalStore
	ticks      market.TickProvider
	indicators market.IndicatorProvider
	decisions  *decision.Logger
	metrics    *metrics.Recorder
}

// New creates a signal validator.
func New(logger *zap.Logger, st store.SignalStore, ticks market.TickProvider, ind market.IndicatorProvider, dl *decision.Logger, rec *metrics.Recorder) *Validator {
	return &Validator{
		logger:     logger.Named("signal-validator"),
		store:      st,
		ticks:      ticks,
		indicators: ind,
		decisions:  dl,
		metrics:    rec,
	}
}

// RunOnce validates every active signal carrying a snapshot. Transient
// evaluation errors leave the signal untouched for the next cycle.
func (v *Validator) RunOnce(ctx context.Context) {
	signals, err := v.store.ActiveSignals(ctx)
	if err != nil {
		v.logger.Warn("Failed to list active signals", zap.Error(err))
		return
	}

	for _, sig := range signals {
		if len(sig.Snapshot) == 0 {
			continue
		}
		reason, indicator, err := v.check(ctx, sig)
		if err != nil {
			v.logger.Debug("Signal check deferred",
				zap.String("signalId", sig.ID),
				zap.Error(err))
			continue
		}
		if reason != "" {
			v.invalidate(ctx, sig, reason, indicator)
		}
	}
}

// check returns a non-empty reason when the signal must be invalidated,
// together with the failing indicator name. Errors are transient.
func (v *Validator) check(ctx context.Context, sig *types.Signal) (string, string, error) {
	open, err := v.ticks.MarketOpen(ctx, sig.Symbol)
	if err != nil {
		return "", "", fmt.Errorf("market state for %s: %w", sig.Symbol, err)
	}
	if !open {
		return "market closed for " + sig.Symbol, "market", nil
	}

	// Deterministic order so the same flip always reports the same
	// first-failing indicator.
	names := make([]string, 0, len(sig.Snapshot))
	for name := range sig.Snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		snap := sig.Snapshot[name]
		live, err := v.indicators.Indicator(ctx, sig.Symbol, sig.Timeframe, name)
		if err != nil {
			return "", "", fmt.Errorf("evaluate %s: %w", name, err)
		}
		if reason := flipRule(name, sig.Direction, snap, live); reason != "" {
			return reason, name, nil
		}
	}
	return "", "", nil
}

func (v *Validator) invalidate(ctx context.Context, sig *types.Signal, reason, indicator string) {
	if err := v.store.ExpireSignal(ctx, sig.ID, reason); err != nil {
		v.logger.Warn("Failed to expire signal",
			zap.String("signalId", sig.ID),
			zap.Error(err))
		return
	}

	if v.metrics != nil {
		v.metrics.RecordInvalidation(indicator)
	}
	if v.decisions != nil {
		v.decisions.Record(ctx, &types.DecisionLog{
			DecisionType:      decision.TypeInvalidation,
			Decision:          "invalidated",
			PrimaryReason:     reason,
			DetailedReasoning: fmt.Sprintf("signal %s no longer supported by %s", sig.ID, indicator),
			ImpactLevel:       types.ImpactMedium,
			Account:           sig.Account,
			Symbol:            sig.Symbol,
		})
	}

	v.logger.Info("Signal invalidated",
		zap.String("signalId", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("reason", reason))
}
