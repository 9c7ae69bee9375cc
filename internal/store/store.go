// Package store defines the transactional-store boundary of the engine.
// Authoritative state (signals, trades, commands, risk configs) lives only
// behind these interfaces; in-process caches are never a source of truth.
package store

import (
	"context"
	"errors"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// SignalStore provides access to signal rows.
type SignalStore interface {
	ActiveSignals(ctx context.Context) ([]*types.Signal, error)
	GetSignal(ctx context.Context, id string) (*types.Signal, error)
	InsertSignal(ctx context.Context, s *types.Signal) error
	// ExpireSignal marks a signal expired with the given reason. The
	// transition is terminal.
	ExpireSignal(ctx context.Context, id, reason string) error
}

// TradeStore provides access to trade rows.
type TradeStore interface {
	GetTrade(ctx context.Context, id string) (*types.Trade, error)
	OpenTrades(ctx context.Context, account string) ([]*types.Trade, error)
	OpenTradesBySymbol(ctx context.Context, account, symbol string) ([]*types.Trade, error)
	TradeByCommandID(ctx context.Context, commandID string) (*types.Trade, error)
	InsertTrade(ctx context.Context, t *types.Trade) error
	CloseTrade(ctx context.Context, id string, profit string) error
}

// CommandStore provides access to command rows.
type CommandStore interface {
	InsertCommand(ctx context.Context, c *types.Command) error
	GetCommand(ctx context.Context, id string) (*types.Command, error)
	// SetCommandStatus records the terminal status set by the execution
	// bridge, or resets a command to pending for a retry.
	SetCommandStatus(ctx context.Context, id string, status types.CommandStatus, errMsg string) error
}

// RiskConfigStore provides access to symbol risk config rows.
type RiskConfigStore interface {
	// GetRiskConfig returns the row or ErrNotFound; rows are created
	// lazily by the caller on first reference.
	GetRiskConfig(ctx context.Context, account, symbol string, direction types.Direction) (*types.SymbolRiskConfig, error)
	SaveRiskConfig(ctx context.Context, cfg *types.SymbolRiskConfig) error
}

// DecisionStore is the write-only decision log sink.
type DecisionStore interface {
	AppendDecision(ctx context.Context, d *types.DecisionLog) error
}

// Store aggregates all row stores behind one boundary.
type Store interface {
	SignalStore
	TradeStore
	CommandStore
	RiskConfigStore
	DecisionStore
}
