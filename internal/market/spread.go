package market

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

const spreadWindow = 100

// SpreadTracker keeps a rolling window of observed spreads per symbol so
// the pre-dispatch sanity check can compare the current spread against a
// recent average. Best-effort cache: losing it on restart only widens
// the first few checks.
type SpreadTracker struct {
	mu      sync.RWMutex
	samples map[string][]decimal.Decimal
}

// NewSpreadTracker creates an empty tracker.
func NewSpreadTracker() *SpreadTracker {
	return &SpreadTracker{samples: make(map[string][]decimal.Decimal)}
}

// Record adds a tick's spread to the symbol's rolling window.
func (st *SpreadTracker) Record(tick types.Tick) {
	spread := tick.Spread()
	if spread.IsNegative() {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	window := append(st.samples[tick.Symbol], spread)
	if len(window) > spreadWindow {
		window = window[len(window)-spreadWindow:]
	}
	st.samples[tick.Symbol] = window
}

// Average returns the rolling average spread for the symbol and whether
// any samples exist yet.
func (st *SpreadTracker) Average(symbol string) (decimal.Decimal, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	window := st.samples[symbol]
	if len(window) == 0 {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, s := range window {
		total = total.Add(s)
	}
	return total.Div(decimal.NewFromInt(int64(len(window)))), true
}

// SampleCount returns how many spreads are recorded for the symbol.
func (st *SpreadTracker) SampleCount(symbol string) int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return len(st.samples[symbol])
}
