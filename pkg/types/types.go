// Package types provides shared type definitions for the trade admission engine.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents trade direction
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the mirrored direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// SignalStatus represents the lifecycle state of a signal
type SignalStatus string

const (
	SignalStatusActive  SignalStatus = "active"
	SignalStatusExpired SignalStatus = "expired"
)

// TradeStatus represents the lifecycle state of a trade
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// CommandType represents the type of an execution command
type CommandType string

const (
	CommandOpenTrade     CommandType = "OPEN_TRADE"
	CommandModifyTrade   CommandType = "MODIFY_TRADE"
	CommandClosePosition CommandType = "CLOSE_POSITION"
)

// CommandStatus represents the execution state of a command
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
)

// RiskStatus represents the adaptive state of a symbol risk config
type RiskStatus string

const (
	RiskStatusActive      RiskStatus = "active"
	RiskStatusReducedRisk RiskStatus = "reduced_risk"
	RiskStatusPaused      RiskStatus = "paused"
)

// Timeframe represents chart timeframes
type Timeframe string

const (
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// MarketRegime classifies market conditions for regime-preference tracking
type MarketRegime string

const (
	RegimeTrending MarketRegime = "trending"
	RegimeRanging  MarketRegime = "ranging"
	RegimeUnknown  MarketRegime = "unknown"
)

// IndicatorValue is a single indicator reading captured in a signal snapshot.
// Value carries the numeric reading where one exists, Label the discrete
// signal classification ("bullish", "overbought", ...).
type IndicatorValue struct {
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

// Signal represents an externally produced trade opportunity.
type Signal struct {
	ID         string                    `json:"id"`
	Account    string                    `json:"account"`
	Symbol     string                    `json:"symbol"`
	Timeframe  Timeframe                 `json:"timeframe"`
	Direction  Direction                 `json:"direction"`
	Confidence float64                   `json:"confidence"` // 0-100
	Entry      decimal.Decimal           `json:"entry"`
	StopLoss   decimal.Decimal           `json:"stopLoss"`
	TakeProfit decimal.Decimal           `json:"takeProfit"`
	Status     SignalStatus              `json:"status"`
	Snapshot   map[string]IndicatorValue `json:"indicatorSnapshot,omitempty"`
	CreatedAt  time.Time                 `json:"createdAt"`
}

// Age returns how old the signal is at the given instant.
func (s *Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// DedupKey returns the mutual-exclusion key for this signal.
func (s *Signal) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s", s.Account, s.Symbol, s.Timeframe)
}

// Trade represents a position confirmed by the execution bridge.
type Trade struct {
	ID              string          `json:"id"`
	Account         string          `json:"account"`
	Symbol          string          `json:"symbol"`
	Timeframe       Timeframe       `json:"timeframe"`
	Direction       Direction       `json:"direction"`
	OpenPrice       decimal.Decimal `json:"openPrice"`
	StopLoss        decimal.Decimal `json:"stopLoss"`
	TakeProfit      decimal.Decimal `json:"takeProfit"`
	Volume          decimal.Decimal `json:"volume"`
	Status          TradeStatus     `json:"status"`
	Profit          decimal.Decimal `json:"profit"`
	EntryConfidence float64         `json:"entryConfidence"`
	Regime          MarketRegime    `json:"regime,omitempty"`
	OpenTime        time.Time       `json:"openTime"`
	CloseTime       time.Time       `json:"closeTime,omitempty"`
	CommandID       string          `json:"commandId"`
}

// HoldTime returns the elapsed hold time of the trade.
func (t *Trade) HoldTime(now time.Time) time.Duration {
	if t.Status == TradeStatusClosed && !t.CloseTime.IsZero() {
		return t.CloseTime.Sub(t.OpenTime)
	}
	return now.Sub(t.OpenTime)
}

// CommandPayload carries the execution parameters of a command.
type CommandPayload struct {
	Account    string          `json:"account"`
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	Direction  Direction       `json:"direction"`
	Volume     decimal.Decimal `json:"volume,omitempty"`
	Price      decimal.Decimal `json:"price,omitempty"`
	StopLoss   decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit decimal.Decimal `json:"takeProfit,omitempty"`
	TradeID    string          `json:"tradeId,omitempty"`
	SignalID   string          `json:"signalId,omitempty"`
	Comment    string          `json:"comment,omitempty"`
}

// Command represents an instruction for the execution bridge. Terminal
// status is set exactly once by the bridge.
type Command struct {
	ID        string         `json:"id"`
	Type      CommandType    `json:"type"`
	Payload   CommandPayload `json:"payload"`
	Status    CommandStatus  `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ClosedTradeStat is one entry of a symbol risk config's rolling window.
type ClosedTradeStat struct {
	Profit decimal.Decimal `json:"profit"`
	Win    bool            `json:"win"`
	Regime MarketRegime    `json:"regime"`
	Closed time.Time       `json:"closed"`
}

// SymbolRiskConfig holds the adaptive per-(account, symbol, direction)
// risk state. Mutated only by the symbol risk controller on trade close.
type SymbolRiskConfig struct {
	Account             string            `json:"account"`
	Symbol              string            `json:"symbol"`
	Direction           Direction         `json:"direction"`
	Status              RiskStatus        `json:"status"`
	ConfidenceThreshold float64           `json:"confidenceThreshold"` // clamped [45,80]
	RiskMultiplier      float64           `json:"riskMultiplier"`      // clamped [0.1,2.0]
	ConsecutiveWins     int               `json:"consecutiveWins"`
	ConsecutiveLosses   int               `json:"consecutiveLosses"`
	Window              []ClosedTradeStat `json:"window"` // last N closed trades
	TrendingTrades      int               `json:"trendingTrades"`
	TrendingWins        int               `json:"trendingWins"`
	RangingTrades       int               `json:"rangingTrades"`
	RangingWins         int               `json:"rangingWins"`
	PreferredRegime     MarketRegime      `json:"preferredRegime,omitempty"`
	PausedAt            time.Time         `json:"pausedAt,omitempty"`
	PauseReason         string            `json:"pauseReason,omitempty"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// RollingTrades returns the number of trades in the rolling window.
func (c *SymbolRiskConfig) RollingTrades() int { return len(c.Window) }

// RollingWins returns the number of winning trades in the rolling window.
func (c *SymbolRiskConfig) RollingWins() int {
	wins := 0
	for _, s := range c.Window {
		if s.Win {
			wins++
		}
	}
	return wins
}

// RollingWinRate returns the rolling win rate in percent, or -1 when the
// window is empty.
func (c *SymbolRiskConfig) RollingWinRate() float64 {
	if len(c.Window) == 0 {
		return -1
	}
	return float64(c.RollingWins()) / float64(len(c.Window)) * 100
}

// RollingProfit returns the net profit over the rolling window.
func (c *SymbolRiskConfig) RollingProfit() decimal.Decimal {
	total := decimal.Zero
	for _, s := range c.Window {
		total = total.Add(s.Profit)
	}
	return total
}

// RollingProfitFactor returns gross wins divided by gross losses over the
// rolling window, or 0 when there are no losses.
func (c *SymbolRiskConfig) RollingProfitFactor() float64 {
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	for _, s := range c.Window {
		if s.Profit.IsPositive() {
			grossWin = grossWin.Add(s.Profit)
		} else {
			grossLoss = grossLoss.Add(s.Profit.Abs())
		}
	}
	if grossLoss.IsZero() {
		return 0
	}
	pf, _ := grossWin.Div(grossLoss).Float64()
	return pf
}

// CircuitBreakerState is the process-wide kill-switch state.
type CircuitBreakerState struct {
	Tripped             bool      `json:"tripped"`
	Reason              string    `json:"reason,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	TrippedAt           time.Time `json:"trippedAt,omitempty"`
}

// AccountState is a read-only snapshot of account balance and equity.
type AccountState struct {
	Account    string          `json:"account"`
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	PeakEquity decimal.Decimal `json:"peakEquity"`
	DailyPnL   decimal.Decimal `json:"dailyPnl"`
}

// DailyLossPercent returns the day's loss as a positive percentage of
// balance, or zero when the day is flat or profitable.
func (a AccountState) DailyLossPercent() float64 {
	if a.Balance.IsZero() || !a.DailyPnL.IsNegative() {
		return 0
	}
	pct, _ := a.DailyPnL.Abs().Div(a.Balance).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// DrawdownPercent returns the drawdown from peak equity as a positive
// percentage, or zero when at or above the peak.
func (a AccountState) DrawdownPercent() float64 {
	if a.PeakEquity.IsZero() || a.Equity.GreaterThanOrEqual(a.PeakEquity) {
		return 0
	}
	pct, _ := a.PeakEquity.Sub(a.Equity).Div(a.PeakEquity).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// ImpactLevel grades how consequential a decision is for observers.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// DecisionLog is a structured record of one engine decision, written so
// observers can reconstruct "why" without re-deriving internal state.
type DecisionLog struct {
	ID                string      `json:"id"`
	DecisionType      string      `json:"decisionType"`
	Decision          string      `json:"decision"`
	PrimaryReason     string      `json:"primaryReason"`
	DetailedReasoning string      `json:"detailedReasoning,omitempty"`
	ImpactLevel       ImpactLevel `json:"impactLevel"`
	Account           string      `json:"account,omitempty"`
	Symbol            string      `json:"symbol,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Tick is a read-only quote snapshot for spread and staleness checks.
type Tick struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Time   time.Time       `json:"time"`
}

// Spread returns ask minus bid.
func (t Tick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}
