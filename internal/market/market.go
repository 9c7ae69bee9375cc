// Package market defines the read-only market data boundary: ticks,
// account snapshots, black-box indicator values, and the economic
// calendar. Implementations live outside the engine.
package market

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// TickProvider serves the latest quote per symbol.
type TickProvider interface {
	LastTick(ctx context.Context, symbol string) (types.Tick, error)
	MarketOpen(ctx context.Context, symbol string) (bool, error)
}

// AccountProvider serves account balance and equity snapshots.
type AccountProvider interface {
	AccountState(ctx context.Context, account string) (types.AccountState, error)
}

// IndicatorProvider is the black-box indicator computation boundary.
// The engine never computes indicator math itself; it only compares
// live readings against snapshot readings.
type IndicatorProvider interface {
	// Indicator returns the live reading of a named indicator.
	Indicator(ctx context.Context, symbol string, tf types.Timeframe, name string) (types.IndicatorValue, error)
	// HigherTimeframeTrend returns "bullish", "bearish" or "neutral" for
	// the symbol's higher-timeframe trend.
	HigherTimeframeTrend(ctx context.Context, symbol string) (string, error)
	// DynamicStop returns a trend-indicator-derived stop price, or zero
	// when none is available.
	DynamicStop(ctx context.Context, symbol string, tf types.Timeframe, direction types.Direction) (decimal.Decimal, error)
	// Regime classifies current market conditions for the symbol.
	Regime(ctx context.Context, symbol string, tf types.Timeframe) (types.MarketRegime, error)
}

// NewsCalendar reports event-driven trading pauses.
type NewsCalendar interface {
	// TradingPaused returns whether trading the symbol is paused right
	// now and the event name causing it.
	TradingPaused(ctx context.Context, symbol string) (bool, string, error)
}

// AssetClass buckets symbols for absolute spread ceilings.
type AssetClass string

const (
	ClassForex  AssetClass = "forex"
	ClassMetal  AssetClass = "metal"
	ClassCrypto AssetClass = "crypto"
	ClassIndex  AssetClass = "index"
)

// ClassOf classifies a symbol into its asset class.
func ClassOf(symbol string) AssetClass {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "XAU"), strings.HasPrefix(s, "XAG"), strings.HasPrefix(s, "XPT"):
		return ClassMetal
	case strings.HasPrefix(s, "BTC"), strings.HasPrefix(s, "ETH"), strings.Contains(s, "USDT"):
		return ClassCrypto
	case len(s) == 6 && isCurrencyPair(s):
		return ClassForex
	default:
		return ClassIndex
	}
}

var currencies = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "NZD": true, "CAD": true, "SEK": true, "NOK": true,
}

func isCurrencyPair(s string) bool {
	return currencies[s[:3]] && currencies[s[3:]]
}
