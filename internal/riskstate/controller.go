// Package riskstate implements the adaptive per-(account, symbol,
// direction) risk state machine driven by trade outcomes.
package riskstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

const (
	windowSize = 20 // rolling closed-trade window per symbol+direction

	minConfidenceThreshold = 45.0
	maxConfidenceThreshold = 80.0
	minRiskMultiplier      = 0.1
	maxRiskMultiplier      = 2.0

	// Trend-alignment adjustment bounds (applied in-memory at gate time,
	// never persisted).
	minEffectiveThreshold = 45.0
	maxEffectiveThreshold = 95.0

	winRateFloor   = 40.0 // below: tighten
	winRateCeiling = 65.0 // above: loosen
	reduceBelow    = 40.0 // active -> reduced_risk
	restoreAbove   = 50.0 // reduced_risk -> active
	minRollingEval = 10   // rolling trades required before status shifts

	regimeMinSamples = 5
	regimeMinGap     = 10.0
)

// Controller owns all mutations of SymbolRiskConfig rows.
type Controller struct {
	logger    *zap.Logger
	store     store.RiskConfigStore
	decisions *decision.Logger

	defaultThreshold float64
	pauseAfterLosses int
	cooldown         time.Duration
	clock            func() time.Time
}

// NewController creates a symbol risk controller.
func NewController(logger *zap.Logger, st store.RiskConfigStore, dl *decision.Logger, defaultThreshold float64, pauseAfterLosses int, cooldownHours int) *Controller {
	if pauseAfterLosses <= 0 {
		pauseAfterLosses = 5
	}
	if cooldownHours <= 0 {
		cooldownHours = 24
	}
	return &Controller{
		logger:           logger.Named("symbol-risk"),
		store:            st,
		decisions:        dl,
		defaultThreshold: clamp(defaultThreshold, minConfidenceThreshold, maxConfidenceThreshold),
		pauseAfterLosses: pauseAfterLosses,
		cooldown:         time.Duration(cooldownHours) * time.Hour,
		clock:            time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *Controller) SetClock(clock func() time.Time) { c.clock = clock }

// Config loads the row for (account, symbol, direction), creating it
// lazily on first reference.
func (c *Controller) Config(ctx context.Context, account, symbol string, direction types.Direction) (*types.SymbolRiskConfig, error) {
	cfg, err := c.store.GetRiskConfig(ctx, account, symbol, direction)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load risk config: %w", err)
	}

	cfg = &types.SymbolRiskConfig{
		Account:             account,
		Symbol:              symbol,
		Direction:           direction,
		Status:              types.RiskStatusActive,
		ConfidenceThreshold: c.defaultThreshold,
		RiskMultiplier:      1.0,
		UpdatedAt:           c.clock(),
	}
	if err := c.store.SaveRiskConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create risk config: %w", err)
	}
	return cfg, nil
}

// GateResult is the controller's admission verdict for one signal.
type GateResult struct {
	Allowed            bool
	Reason             string
	EffectiveThreshold float64
	Multiplier         float64
}

// Gate evaluates a signal against the symbol's risk state. trendLabel is
// the higher-timeframe trend ("bullish"/"bearish"/"neutral"); the
// resulting threshold adjustment is temporary and never persisted.
func (c *Controller) Gate(ctx context.Context, sig *types.Signal, trendLabel string) (GateResult, error) {
	cfg, err := c.Config(ctx, sig.Account, sig.Symbol, sig.Direction)
	if err != nil {
		return GateResult{}, err
	}

	if cfg.Status == types.RiskStatusPaused {
		if c.clock().Sub(cfg.PausedAt) >= c.cooldown {
			cfg.Status = types.RiskStatusActive
			cfg.ConsecutiveLosses = 0
			cfg.PauseReason = ""
			cfg.PausedAt = time.Time{}
			cfg.UpdatedAt = c.clock()
			if err := c.store.SaveRiskConfig(ctx, cfg); err != nil {
				return GateResult{}, fmt.Errorf("resume risk config: %w", err)
			}
			c.logger.Info("Symbol resumed after cooldown",
				zap.String("symbol", sig.Symbol),
				zap.String("direction", string(sig.Direction)))
		} else {
			return GateResult{
				Allowed:    false,
				Reason:     fmt.Sprintf("symbol paused: %s", cfg.PauseReason),
				Multiplier: cfg.RiskMultiplier,
			}, nil
		}
	}

	effective := effectiveThreshold(cfg.ConfidenceThreshold, sig.Direction, trendLabel)
	if sig.Confidence < effective {
		return GateResult{
			Allowed:            false,
			Reason:             fmt.Sprintf("confidence %.1f below effective threshold %.1f", sig.Confidence, effective),
			EffectiveThreshold: effective,
			Multiplier:         cfg.RiskMultiplier,
		}, nil
	}

	return GateResult{
		Allowed:            true,
		EffectiveThreshold: effective,
		Multiplier:         cfg.RiskMultiplier,
	}, nil
}

// effectiveThreshold applies the trend-alignment adjustment: signals
// trading with the higher-timeframe trend get a 15-point discount,
// signals against it a 20-point surcharge.
func effectiveThreshold(base float64, direction types.Direction, trendLabel string) float64 {
	adjusted := base
	switch trendLabel {
	case "bullish":
		if direction == types.DirectionBuy {
			adjusted -= 15
		} else {
			adjusted += 20
		}
	case "bearish":
		if direction == types.DirectionSell {
			adjusted -= 15
		} else {
			adjusted += 20
		}
	}
	return clamp(adjusted, minEffectiveThreshold, maxEffectiveThreshold)
}

// OnTradeClose folds one closed trade into the symbol's adaptive state.
func (c *Controller) OnTradeClose(ctx context.Context, trade *types.Trade) error {
	if trade.Status != types.TradeStatusClosed {
		return fmt.Errorf("trade %s not closed", trade.ID)
	}

	cfg, err := c.Config(ctx, trade.Account, trade.Symbol, trade.Direction)
	if err != nil {
		return err
	}

	win := trade.Profit.IsPositive()

	if win {
		cfg.ConsecutiveWins++
		cfg.ConsecutiveLosses = 0
	} else {
		cfg.ConsecutiveLosses++
		cfg.ConsecutiveWins = 0
	}

	cfg.Window = append(cfg.Window, types.ClosedTradeStat{
		Profit: trade.Profit,
		Win:    win,
		Regime: trade.Regime,
		Closed: trade.CloseTime,
	})
	if len(cfg.Window) > windowSize {
		cfg.Window = cfg.Window[len(cfg.Window)-windowSize:]
	}

	switch trade.Regime {
	case types.RegimeTrending:
		cfg.TrendingTrades++
		if win {
			cfg.TrendingWins++
		}
	case types.RegimeRanging:
		cfg.RangingTrades++
		if win {
			cfg.RangingWins++
		}
	}

	winRate := cfg.RollingWinRate()

	c.updateConfidenceThreshold(cfg, win, winRate)
	c.updateRiskMultiplier(cfg, winRate)
	c.updateStatus(cfg, winRate)
	c.updateRegimePreference(cfg)

	cfg.UpdatedAt = c.clock()
	if err := c.store.SaveRiskConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save risk config: %w", err)
	}

	c.logger.Info("Symbol risk state updated",
		zap.String("symbol", cfg.Symbol),
		zap.String("direction", string(cfg.Direction)),
		zap.Bool("win", win),
		zap.String("status", string(cfg.Status)),
		zap.Float64("threshold", cfg.ConfidenceThreshold),
		zap.Float64("multiplier", cfg.RiskMultiplier),
		zap.Float64("winRate", winRate))
	return nil
}

func (c *Controller) updateConfidenceThreshold(cfg *types.SymbolRiskConfig, win bool, winRate float64) {
	if win {
		cfg.ConfidenceThreshold--
	} else {
		cfg.ConfidenceThreshold += 5
	}
	if winRate >= 0 {
		if winRate < winRateFloor {
			cfg.ConfidenceThreshold += 5
		} else if winRate > winRateCeiling {
			cfg.ConfidenceThreshold -= 2
		}
	}
	cfg.ConfidenceThreshold = clamp(cfg.ConfidenceThreshold, minConfidenceThreshold, maxConfidenceThreshold)
}

func (c *Controller) updateRiskMultiplier(cfg *types.SymbolRiskConfig, winRate float64) {
	if cfg.ConsecutiveWins >= 3 {
		cfg.RiskMultiplier += 0.05
	}
	if cfg.ConsecutiveLosses >= 2 {
		cfg.RiskMultiplier -= 0.1
	}

	// Hard caps tied to rolling performance trump streak adjustments.
	if winRate >= 0 {
		if winRate < winRateFloor && cfg.RiskMultiplier > 0.5 {
			cfg.RiskMultiplier = 0.5
		} else if winRate > winRateCeiling && cfg.RiskMultiplier > 1.5 {
			cfg.RiskMultiplier = 1.5
		}
	}
	cfg.RiskMultiplier = clamp(cfg.RiskMultiplier, minRiskMultiplier, maxRiskMultiplier)
}

func (c *Controller) updateStatus(cfg *types.SymbolRiskConfig, winRate float64) {
	if cfg.Status != types.RiskStatusPaused && cfg.ConsecutiveLosses >= c.pauseAfterLosses {
		cfg.Status = types.RiskStatusPaused
		cfg.PausedAt = c.clock()
		cfg.PauseReason = fmt.Sprintf("%d consecutive losses", cfg.ConsecutiveLosses)
		if c.decisions != nil {
			c.decisions.Record(context.Background(), &types.DecisionLog{
				DecisionType:      decision.TypeBreaker,
				Decision:          "symbol_paused",
				PrimaryReason:     cfg.PauseReason,
				DetailedReasoning: fmt.Sprintf("%s %s paused for %s", cfg.Symbol, cfg.Direction, c.cooldown),
				ImpactLevel:       types.ImpactHigh,
				Account:           cfg.Account,
				Symbol:            cfg.Symbol,
			})
		}
		return
	}

	// Win-rate driven shifts need a meaningful sample.
	if cfg.RollingTrades() < minRollingEval || winRate < 0 {
		return
	}
	switch cfg.Status {
	case types.RiskStatusActive:
		if winRate < reduceBelow {
			cfg.Status = types.RiskStatusReducedRisk
		}
	case types.RiskStatusReducedRisk:
		if winRate > restoreAbove {
			cfg.Status = types.RiskStatusActive
		}
	}
}

func (c *Controller) updateRegimePreference(cfg *types.SymbolRiskConfig) {
	if cfg.TrendingTrades < regimeMinSamples || cfg.RangingTrades < regimeMinSamples {
		cfg.PreferredRegime = ""
		return
	}
	trendRate := float64(cfg.TrendingWins) / float64(cfg.TrendingTrades) * 100
	rangeRate := float64(cfg.RangingWins) / float64(cfg.RangingTrades) * 100

	switch {
	case trendRate-rangeRate > regimeMinGap:
		cfg.PreferredRegime = types.RegimeTrending
	case rangeRate-trendRate > regimeMinGap:
		cfg.PreferredRegime = types.RegimeRanging
	default:
		cfg.PreferredRegime = ""
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
