package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// State is the in-process market snapshot fed by the execution bridge.
// It implements TickProvider, AccountProvider, IndicatorProvider and
// NewsCalendar. All data is push-updated; readers never block.
type State struct {
	mu         sync.RWMutex
	ticks      map[string]types.Tick
	accounts   map[string]types.AccountState
	indicators map[string]types.IndicatorValue // symbol:tf:name
	trends     map[string]string
	stops      map[string]decimal.Decimal // symbol:tf:direction
	regimes    map[string]types.MarketRegime
	closed     map[string]bool
	pauses     map[string]string // symbol -> event name
}

// NewState creates an empty market state.
func NewState() *State {
	return &State{
		ticks:      make(map[string]types.Tick),
		accounts:   make(map[string]types.AccountState),
		indicators: make(map[string]types.IndicatorValue),
		trends:     make(map[string]string),
		stops:      make(map[string]decimal.Decimal),
		regimes:    make(map[string]types.MarketRegime),
		closed:     make(map[string]bool),
		pauses:     make(map[string]string),
	}
}

func indicatorKey(symbol string, tf types.Timeframe, name string) string {
	return fmt.Sprintf("%s:%s:%s", symbol, tf, name)
}

func stopKey(symbol string, tf types.Timeframe, dir types.Direction) string {
	return fmt.Sprintf("%s:%s:%s", symbol, tf, dir)
}

// SetTick records the latest quote for a symbol.
func (s *State) SetTick(tick types.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[tick.Symbol] = tick
}

// SetAccountState records an account snapshot.
func (s *State) SetAccountState(acct types.AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.Account] = acct
}

// SetIndicator records a live indicator reading.
func (s *State) SetIndicator(symbol string, tf types.Timeframe, name string, v types.IndicatorValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators[indicatorKey(symbol, tf, name)] = v
}

// SetTrend records the higher-timeframe trend label for a symbol.
func (s *State) SetTrend(symbol, trend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trends[symbol] = trend
}

// SetDynamicStop records a trend-derived stop price.
func (s *State) SetDynamicStop(symbol string, tf types.Timeframe, dir types.Direction, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops[stopKey(symbol, tf, dir)] = price
}

// SetRegime records the symbol's market regime.
func (s *State) SetRegime(symbol string, tf types.Timeframe, regime types.MarketRegime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regimes[indicatorKey(symbol, tf, "regime")] = regime
}

// SetMarketClosed flags a symbol's market as closed or open.
func (s *State) SetMarketClosed(symbol string, isClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[symbol] = isClosed
}

// SetNewsPause starts a news pause for a symbol. Empty event clears it.
func (s *State) SetNewsPause(symbol, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event == "" {
		delete(s.pauses, symbol)
		return
	}
	s.pauses[symbol] = event
}

// --- provider implementations ---

func (s *State) LastTick(_ context.Context, symbol string) (types.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.ticks[symbol]
	if !ok {
		return types.Tick{}, fmt.Errorf("no tick for %s", symbol)
	}
	return tick, nil
}

// MarketOpen defaults to open for unknown symbols so a missing flag
// never invalidates signals on its own.
func (s *State) MarketOpen(_ context.Context, symbol string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed[symbol], nil
}

func (s *State) AccountState(_ context.Context, account string) (types.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[account]
	if !ok {
		return types.AccountState{}, fmt.Errorf("no account state for %s", account)
	}
	return acct, nil
}

func (s *State) Indicator(_ context.Context, symbol string, tf types.Timeframe, name string) (types.IndicatorValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.indicators[indicatorKey(symbol, tf, name)]
	if !ok {
		return types.IndicatorValue{}, fmt.Errorf("no %s reading for %s %s", name, symbol, tf)
	}
	return v, nil
}

func (s *State) HigherTimeframeTrend(_ context.Context, symbol string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if trend, ok := s.trends[symbol]; ok {
		return trend, nil
	}
	return "neutral", nil
}

func (s *State) DynamicStop(_ context.Context, symbol string, tf types.Timeframe, dir types.Direction) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stops[stopKey(symbol, tf, dir)], nil
}

func (s *State) Regime(_ context.Context, symbol string, tf types.Timeframe) (types.MarketRegime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if regime, ok := s.regimes[indicatorKey(symbol, tf, "regime")]; ok {
		return regime, nil
	}
	return types.RegimeUnknown, nil
}

func (s *State) TradingPaused(_ context.Context, symbol string) (bool, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.pauses[symbol]
	return ok, event, nil
}
