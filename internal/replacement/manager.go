// Package replacement closes open positions whose opportunity cost is no
// longer justified, freeing capacity for higher-ranked signals.
package replacement

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
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/queue"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// Manager evaluates opportunity-cost replacement for new signals and runs
// the independent stale-position check.
type Manager struct {
	logger    *zap.Logger
	store     store.Store
	queue     queue.Queue
	tracker   *tracker.Tracker
	decisions *decision.Logger
	metrics   *metrics.Recorder
	cfg       config.ReplacementConfig
	clock     func() time.Time
}

// NewManager creates a replacement manager.
func NewManager(logger *zap.Logger, st store.Store, q queue.Queue, tr *tracker.Tracker, dl *decision.Logger, rec *metrics.Recorder, cfg config.ReplacementConfig) *Manager {
	return &Manager{
		logger:    logger.Named("replacement"),
		store:     st,
		queue:     q,
		tracker:   tr,
		decisions: dl,
		metrics:   rec,
		cfg:       cfg,
		clock:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// EvaluateForSignal closes open trades on the signal's symbol and
// direction that a qualifying new signal outranks. Closing is
// fire-and-forget: success is confirmed later by reconciliation.
// Returns the number of close commands issued.
func (m *Manager) EvaluateForSignal(ctx context.Context, sig *types.Signal) (int, error) {
	trades, err := m.store.OpenTradesBySymbol(ctx, sig.Account, sig.Symbol)
	if err != nil {
		return 0, fmt.Errorf("list open trades: %w", err)
	}

	closed := 0
	for _, t := range trades {
		if t.Direction != sig.Direction {
			continue
		}
		if reason := m.replaceReason(t, sig); reason != "" {
			if err := m.closeTrade(ctx, t, reason); err != nil {
				m.logger.Warn("Failed to issue replacement close",
					zap.String("tradeId", t.ID), zap.Error(err))
				continue
			}
			closed++
		}
	}
	return closed, nil
}

// replaceReason applies the replacement rules in order and returns the
// first matching reason, or "" when the trade keeps its slot.
func (m *Manager) replaceReason(t *types.Trade, sig *types.Signal) string {
	now := m.clock()
	hold := t.HoldTime(now)
	maxHold := m.cfg.MaxHoldFor(t.Symbol)

	if hold > maxHold {
		return fmt.Sprintf("max hold time exceeded (%s > %s)", hold.Round(time.Minute), maxHold)
	}

	confImproved := sig.Confidence >= t.EntryConfidence+m.cfg.ConfidenceImprovement &&
		sig.Confidence >= m.cfg.MinNewConfidence

	if t.Profit.IsNegative() && confImproved {
		return fmt.Sprintf("losing trade outranked by signal confidence %.1f (entry %.1f)", sig.Confidence, t.EntryConfidence)
	}

	profitWindow := decimal.NewFromFloat(m.cfg.ProfitWindow)
	if t.Profit.Abs().LessThanOrEqual(profitWindow) && confImproved {
		return fmt.Sprintf("flat trade outranked by signal confidence %.1f", sig.Confidence)
	}

	lossFloor := decimal.NewFromFloat(m.cfg.LossFloor).Neg()
	if t.Profit.LessThan(lossFloor) && hold >= time.Duration(float64(maxHold)*m.cfg.HoldTimeFraction) {
		return fmt.Sprintf("loss %s beyond floor with %.0f%% of max hold elapsed", t.Profit, m.cfg.HoldTimeFraction*100)
	}

	return ""
}

// StaleCheck closes trades past their max hold time regardless of any
// new signal. Run periodically.
func (m *Manager) StaleCheck(ctx context.Context, account string) (int, error) {
	trades, err := m.store.OpenTrades(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("list open trades: %w", err)
	}

	now := m.clock()
	closed := 0
	for _, t := range trades {
		maxHold := m.cfg.MaxHoldFor(t.Symbol)
		if hold := t.HoldTime(now); hold > maxHold {
			reason := fmt.Sprintf("stale position: held %s, max %s", hold.Round(time.Minute), maxHold)
			if err := m.closeTrade(ctx, t, reason); err != nil {
				m.logger.Warn("Failed to issue stale close",
					zap.String("tradeId", t.ID), zap.Error(err))
				continue
			}
			closed++
		}
	}
	return closed, nil
}

func (m *Manager) closeTrade(ctx context.Context, t *types.Trade, reason string) error {
	cmd := &types.Command{
		ID:   uuid.NewString(),
		Type: types.CommandClosePosition,
		Payload: types.CommandPayload{
			Account:   t.Account,
			Symbol:    t.Symbol,
			Timeframe: t.Timeframe,
			Direction: t.Direction,
			TradeID:   t.ID,
			Comment:   reason,
		},
		Status:    types.CommandStatusPending,
		CreatedAt: m.clock(),
	}

	if err := m.store.InsertCommand(ctx, cmd); err != nil {
		return fmt.Errorf("insert close command: %w", err)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal close command: %w", err)
	}
	if err := m.queue.Push(ctx, "commands:"+t.Account, payload); err != nil {
		return fmt.Errorf("enqueue close command: %w", err)
	}
	m.tracker.Register(cmd, "")

	if m.metrics != nil {
		m.metrics.RecordReplacement()
		m.metrics.RecordCommand(string(types.CommandClosePosition), "dispatched")
	}
	if m.decisions != nil {
		m.decisions.Record(ctx, &types.DecisionLog{
			DecisionType:      decision.TypeReplacement,
			Decision:          "close_issued",
			PrimaryReason:     reason,
			DetailedReasoning: fmt.Sprintf("trade %s on %s %s, profit %s", t.ID, t.Symbol, t.Direction, t.Profit),
			ImpactLevel:       types.ImpactMedium,
			Account:           t.Account,
			Symbol:            t.Symbol,
		})
	}

	m.logger.Info("Replacement close issued",
		zap.String("tradeId", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("reason", reason))
	return nil
}
