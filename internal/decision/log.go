// Package decision provides the structured decision log written for every
// admission, invalidation, replacement and breaker event.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// Decision types written by the engine.
const (
	TypeAdmission    = "signal_admission"
	TypeInvalidation = "signal_invalidation"
	TypeReplacement  = "position_replacement"
	TypeExecution    = "command_execution"
	TypeBreaker      = "circuit_breaker"
)

// Sink receives every decision after it is persisted. Used by the
// websocket hub; failures there never block the engine.
type Sink interface {
	Publish(d *types.DecisionLog)
}

// Logger persists decision records and fans them out to sinks.
// Write-only: the engine never reads decisions back.
type Logger struct {
	store  store.DecisionStore
	logger *zap.Logger
	sinks  []Sink
	clock  func() time.Time
}

// NewLogger creates a decision logger.
func NewLogger(st store.DecisionStore, logger *zap.Logger, sinks ...Sink) *Logger {
	return &Logger{
		store:  st,
		logger: logger.Named("decision-log"),
		sinks:  sinks,
		clock:  time.Now,
	}
}

// SetClock overrides the time source for tests.
func (l *Logger) SetClock(clock func() time.Time) { l.clock = clock }

// Record persists one decision. Store failures are logged and swallowed:
// losing a decision record must never change engine behavior.
func (l *Logger) Record(ctx context.Context, d *types.DecisionLog) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = l.clock()
	}

	if err := l.store.AppendDecision(ctx, d); err != nil {
		l.logger.Warn("Failed to persist decision",
			zap.String("decisionType", d.DecisionType),
			zap.Error(err))
	}

	for _, s := range l.sinks {
		s.Publish(d)
	}

	l.logger.Debug("Decision recorded",
		zap.String("type", d.DecisionType),
		zap.String("decision", d.Decision),
		zap.String("reason", d.PrimaryReason),
		zap.String("impact", string(d.ImpactLevel)))
}

// Rejection records a rejected admission with the gate reason.
func (l *Logger) Rejection(ctx context.Context, signal *types.Signal, reason, detail string, impact types.ImpactLevel) {
	l.Record(ctx, &types.DecisionLog{
		DecisionType:      TypeAdmission,
		Decision:          "rejected",
		PrimaryReason:     reason,
		DetailedReasoning: detail,
		ImpactLevel:       impact,
		Account:           signal.Account,
		Symbol:            signal.Symbol,
	})
}

// Approval records an approved admission.
func (l *Logger) Approval(ctx context.Context, signal *types.Signal, detail string) {
	l.Record(ctx, &types.DecisionLog{
		DecisionType:      TypeAdmission,
		Decision:          "approved",
		PrimaryReason:     "all gates passed",
		DetailedReasoning: detail,
		ImpactLevel:       types.ImpactMedium,
		Account:           signal.Account,
		Symbol:            signal.Symbol,
	})
}
