// Package engine runs the periodic worker loops: signal admission,
// signal validation, command reconciliation and the stale-position
// check. All coordination happens through the store and the distributed
// lock; loops are safe to run in multiple processes at once.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/admission"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/replacement"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/riskstate"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/validator"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/workers"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// Engine owns the worker loops and their shared services.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	admission *admission.Controller
	validator *validator.Validator
	tracker   *tracker.Tracker
	breaker   *tracker.CircuitBreaker
	riskCtl   *riskstate.Controller
	replacer  *replacement.Manager
	accounts  market.AccountProvider
	metrics   *metrics.Recorder
	pool      *workers.Pool

	mu        sync.Mutex
	isRunning bool
	isPaused  bool
	startTime time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// New creates an engine; call Start to launch the loops.
func New(
	logger *zap.Logger,
	cfg *config.Config,
	adm *admission.Controller,
	val *validator.Validator,
	tr *tracker.Tracker,
	cb *tracker.CircuitBreaker,
	riskCtl *riskstate.Controller,
	repl *replacement.Manager,
	accounts market.AccountProvider,
	rec *metrics.Recorder,
) *Engine {
	return &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		admission: adm,
		validator: val,
		tracker:   tr,
		breaker:   cb,
		riskCtl:   riskCtl,
		replacer:  repl,
		accounts:  accounts,
		metrics:   rec,
		pool:      workers.NewPool(logger, "accounts", 4, 2*len(cfg.Engine.Accounts)+8),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the worker loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.isRunning = true
	e.startTime = time.Now()
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("Starting engine",
		zap.Strings("accounts", e.cfg.Engine.Accounts),
		zap.Duration("admissionInterval", e.cfg.Engine.AdmissionInterval),
		zap.Duration("validatorInterval", e.cfg.Engine.ValidatorInterval))

	e.pool.Start(ctx)

	e.wg.Add(4)
	go e.admissionLoop(ctx)
	go e.validatorLoop(ctx)
	go e.reconcileLoop(ctx)
	go e.staleLoop(ctx)

	return nil
}

// Stop signals the loops and waits for them to drain.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine not running")
	}
	e.isRunning = false
	close(e.stopChan)
	e.mu.Unlock()

	e.wg.Wait()
	e.pool.Stop()
	e.logger.Info("Engine stopped")
	return nil
}

// Pause suspends admission decisions; validation and reconciliation
// keep running so in-flight state stays consistent.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isRunning && !e.isPaused {
		e.isPaused = true
		e.logger.Info("Admissions paused")
	}
}

// Resume re-enables admission decisions.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isRunning && e.isPaused {
		e.isPaused = false
		e.logger.Info("Admissions resumed")
	}
}

// Status reports the engine's runtime state.
type Status struct {
	Running         bool                      `json:"running"`
	Paused          bool                      `json:"paused"`
	Uptime          string                    `json:"uptime,omitempty"`
	PendingCommands int                       `json:"pendingCommands"`
	Breaker         types.CircuitBreakerState `json:"breaker"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	running := e.isRunning
	paused := e.isPaused
	start := e.startTime
	e.mu.Unlock()

	s := Status{
		Running:         running,
		Paused:          paused,
		PendingCommands: e.tracker.PendingCount(),
		Breaker:         e.breaker.State(),
	}
	if running {
		s.Uptime = time.Since(start).Round(time.Second).String()
	}
	return s
}

// NotifyTradeClosed feeds a closed trade into the adaptive risk state
// and, on a losing close, starts the stop-loss cooldown.
func (e *Engine) NotifyTradeClosed(ctx context.Context, trade *types.Trade) error {
	if trade.Profit.IsNegative() {
		e.admission.Cooldowns.Record(trade.Account, trade.Symbol)
	}
	if err := e.riskCtl.OnTradeClose(ctx, trade); err != nil {
		return fmt.Errorf("risk state update: %w", err)
	}
	return nil
}

func (e *Engine) admissionLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.Engine.AdmissionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			if e.paused() {
				continue
			}
			e.checkAccounts(ctx)
			e.admission.RunOnce(ctx)
		}
	}
}

func (e *Engine) validatorLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.Engine.ValidatorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.validator.RunOnce(ctx)
		}
	}
}

func (e *Engine) reconcileLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.Engine.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.tracker.Reconcile(ctx)
			if e.metrics != nil {
				e.metrics.SetPendingCommands(e.tracker.PendingCount())
			}
		}
	}
}

func (e *Engine) staleLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.Engine.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			tasks := make([]workers.Task, 0, len(e.cfg.Engine.Accounts))
			for _, account := range e.cfg.Engine.Accounts {
				account := account
				tasks = append(tasks, func(ctx context.Context) error {
					if _, err := e.replacer.StaleCheck(ctx, account); err != nil {
						return fmt.Errorf("stale check %s: %w", account, err)
					}
					return nil
				})
			}
			e.pool.Drain(ctx, tasks)
		}
	}
}

// checkAccounts evaluates loss thresholds for every configured account
// before the admission pass so a breach halts the whole cycle. Accounts
// are checked in parallel; Drain returns once all are done.
func (e *Engine) checkAccounts(ctx context.Context) {
	tasks := make([]workers.Task, 0, len(e.cfg.Engine.Accounts))
	for _, account := range e.cfg.Engine.Accounts {
		account := account
		tasks = append(tasks, func(ctx context.Context) error {
			acct, err := e.accounts.AccountState(ctx, account)
			if err != nil {
				return fmt.Errorf("account state %s: %w", account, err)
			}
			if tripped, reason := e.breaker.EvaluateAccount(acct); tripped {
				e.logger.Error("Account loss threshold breached",
					zap.String("account", account),
					zap.String("reason", reason))
			}
			return nil
		})
	}
	e.pool.Drain(ctx, tasks)
}

func (e *Engine) paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isPaused || !e.isRunning
}
