// Package tracker reconciles dispatched commands against resulting trades
// and drives the global circuit breaker.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// CircuitBreaker is the process-wide kill switch. It trips on breached
// loss thresholds or repeated execution failures and halts all
// admissions until an explicit administrative reset.
type CircuitBreaker struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	metrics *metrics.Recorder

	maxDailyLossPct  float64
	maxDrawdownPct   float64
	failureThreshold int

	state types.CircuitBreakerState
}

// NewCircuitBreaker creates an untripped breaker.
func NewCircuitBreaker(logger *zap.Logger, rec *metrics.Recorder, maxDailyLossPct, maxDrawdownPct float64, failureThreshold int) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &CircuitBreaker{
		logger:           logger.Named("circuit-breaker"),
		metrics:          rec,
		maxDailyLossPct:  maxDailyLossPct,
		maxDrawdownPct:   maxDrawdownPct,
		failureThreshold: failureThreshold,
	}
}

// Tripped reports whether admissions are halted.
func (cb *CircuitBreaker) Tripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state.Tripped
}

// State returns a copy of the breaker state.
func (cb *CircuitBreaker) State() types.CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// EvaluateAccount trips the breaker when account loss thresholds are
// breached. Returns the trip reason when tripped.
func (cb *CircuitBreaker) EvaluateAccount(acct types.AccountState) (bool, string) {
	if dl := acct.DailyLossPercent(); cb.maxDailyLossPct > 0 && dl > cb.maxDailyLossPct {
		reason := fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", dl, cb.maxDailyLossPct)
		cb.Trip(reason)
		return true, reason
	}
	if dd := acct.DrawdownPercent(); cb.maxDrawdownPct > 0 && dd > cb.maxDrawdownPct {
		reason := fmt.Sprintf("total drawdown %.2f%% exceeds limit %.2f%%", dd, cb.maxDrawdownPct)
		cb.Trip(reason)
		return true, reason
	}
	return false, ""
}

// RecordFailure counts one command failure and trips the breaker at the
// consecutive-failure threshold.
func (cb *CircuitBreaker) RecordFailure(context string) {
	cb.mu.Lock()
	cb.state.ConsecutiveFailures++
	failures := cb.state.ConsecutiveFailures
	shouldTrip := !cb.state.Tripped && failures >= cb.failureThreshold
	cb.mu.Unlock()

	cb.logger.Warn("Command failure recorded",
		zap.String("context", context),
		zap.Int("consecutiveFailures", failures))

	if shouldTrip {
		cb.Trip(fmt.Sprintf("%d consecutive command failures", failures))
	}
}

// RecordSuccess decays the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state.ConsecutiveFailures > 0 {
		cb.state.ConsecutiveFailures--
	}
}

// Trip halts all admissions. Idempotent; the first reason wins.
func (cb *CircuitBreaker) Trip(reason string) {
	cb.mu.Lock()
	if cb.state.Tripped {
		cb.mu.Unlock()
		return
	}
	cb.state.Tripped = true
	cb.state.Reason = reason
	cb.state.TrippedAt = time.Now()
	cb.mu.Unlock()

	if cb.metrics != nil {
		cb.metrics.SetBreakerTripped(true)
	}
	cb.logger.Error("CIRCUIT BREAKER TRIPPED - all admissions halted",
		zap.String("reason", reason))
}

// Reset clears the breaker. Administrative action only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	wasTripped := cb.state.Tripped
	cb.state = types.CircuitBreakerState{}
	cb.mu.Unlock()

	if cb.metrics != nil {
		cb.metrics.SetBreakerTripped(false)
	}
	if wasTripped {
		cb.logger.Warn("Circuit breaker manually reset")
	}
}
