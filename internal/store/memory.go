package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// single-process runs; production deployments swap in a SQL-backed
// implementation of the same interfaces.
type MemoryStore struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	signals   map[string]*types.Signal
	trades    map[string]*types.Trade
	commands  map[string]*types.Command
	riskCfgs  map[string]*types.SymbolRiskConfig
	decisions []*types.DecisionLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:   logger.Named("memory-store"),
		signals:  make(map[string]*types.Signal),
		trades:   make(map[string]*types.Trade),
		commands: make(map[string]*types.Command),
		riskCfgs: make(map[string]*types.SymbolRiskConfig),
	}
}

func riskKey(account, symbol string, direction types.Direction) string {
	return fmt.Sprintf("%s:%s:%s", account, symbol, direction)
}

// ActiveSignals returns copies of all signals currently marked active.
func (m *MemoryStore) ActiveSignals(ctx context.Context) ([]*types.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Signal, 0, len(m.signals))
	for _, s := range m.signals {
		if s.Status == types.SignalStatusActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetSignal(ctx context.Context, id string) (*types.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.signals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) InsertSignal(ctx context.Context, s *types.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ExpireSignal(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status == types.SignalStatusExpired {
		return nil
	}
	s.Status = types.SignalStatusExpired
	m.logger.Debug("Signal expired",
		zap.String("signalId", id),
		zap.String("reason", reason))
	return nil
}

func (m *MemoryStore) GetTrade(ctx context.Context, id string) (*types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trades[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) OpenTrades(ctx context.Context, account string) ([]*types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Trade, 0)
	for _, t := range m.trades {
		if t.Account == account && t.Status == types.TradeStatusOpen {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) OpenTradesBySymbol(ctx context.Context, account, symbol string) ([]*types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Trade, 0)
	for _, t := range m.trades {
		if t.Account == account && t.Symbol == symbol && t.Status == types.TradeStatusOpen {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) TradeByCommandID(ctx context.Context, commandID string) (*types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.trades {
		if t.CommandID == commandID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) InsertTrade(ctx context.Context, t *types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.trades[t.ID] = &cp
	return nil
}

func (m *MemoryStore) CloseTrade(ctx context.Context, id string, profit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trades[id]
	if !ok {
		return ErrNotFound
	}
	p, err := decimal.NewFromString(profit)
	if err != nil {
		return fmt.Errorf("parse profit %q: %w", profit, err)
	}
	t.Status = types.TradeStatusClosed
	t.Profit = p
	t.CloseTime = time.Now()
	return nil
}

func (m *MemoryStore) InsertCommand(ctx context.Context, c *types.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.commands[c.ID]; exists {
		return fmt.Errorf("command %s already exists", c.ID)
	}
	cp := *c
	m.commands[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCommand(ctx context.Context, id string) (*types.Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) SetCommandStatus(ctx context.Context, id string, status types.CommandStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.commands[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.Error = errMsg
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetRiskConfig(ctx context.Context, account, symbol string, direction types.Direction) (*types.SymbolRiskConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.riskCfgs[riskKey(account, symbol, direction)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cfg
	cp.Window = append([]types.ClosedTradeStat(nil), cfg.Window...)
	return &cp, nil
}

func (m *MemoryStore) SaveRiskConfig(ctx context.Context, cfg *types.SymbolRiskConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cfg
	cp.Window = append([]types.ClosedTradeStat(nil), cfg.Window...)
	m.riskCfgs[riskKey(cfg.Account, cfg.Symbol, cfg.Direction)] = &cp
	return nil
}

func (m *MemoryStore) AppendDecision(ctx context.Context, d *types.DecisionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.decisions = append(m.decisions, &cp)
	return nil
}

// Commands returns a copy of all stored commands in unspecified order.
func (m *MemoryStore) Commands() []*types.Command {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Command, 0, len(m.commands))
	for _, c := range m.commands {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// Decisions returns a copy of all recorded decisions, newest last.
func (m *MemoryStore) Decisions() []*types.DecisionLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.DecisionLog, len(m.decisions))
	copy(out, m.decisions)
	return out
}
