// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the engine's Prometheus collectors.
type Recorder struct {
	admissions        *prometheus.CounterVec
	gateRejections    *prometheus.CounterVec
	commands          *prometheus.CounterVec
	retries           prometheus.Counter
	invalidations     *prometheus.CounterVec
	replacements      prometheus.Counter
	breakerTripped    prometheus.Gauge
	lockFailOpen      prometheus.Counter
	pendingCommands   prometheus.Gauge
	gateChainDuration prometheus.Histogram
}

// New creates and registers the engine collectors.
func New() *Recorder {
	return &Recorder{
		admissions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngt_admissions_total",
				Help: "Signal admission decisions by outcome",
			},
			[]string{"decision"},
		),
		gateRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngt_gate_rejections_total",
				Help: "Gate rejections by gate name",
			},
			[]string{"gate"},
		),
		commands: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngt_commands_total",
				Help: "Commands dispatched by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		retries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ngt_command_retries_total",
				Help: "Command re-enqueues after retriable failures",
			},
		),
		invalidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngt_signal_invalidations_total",
				Help: "Signal invalidations by failing indicator",
			},
			[]string{"indicator"},
		),
		replacements: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ngt_position_replacements_total",
				Help: "Positions closed by the replacement manager",
			},
		),
		breakerTripped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ngt_circuit_breaker_tripped",
				Help: "1 while the global circuit breaker is tripped",
			},
		),
		lockFailOpen: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ngt_lock_fail_open_total",
				Help: "Admissions that proceeded without the distributed lock",
			},
		),
		pendingCommands: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ngt_pending_commands",
				Help: "Commands awaiting downstream confirmation",
			},
		),
		gateChainDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ngt_gate_chain_duration_seconds",
				Help:    "Time spent evaluating the admission gate chain",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordAdmission counts one admission decision ("approved", "rejected",
// "skipped").
func (r *Recorder) RecordAdmission(decision string) {
	r.admissions.WithLabelValues(decision).Inc()
}

// RecordGateRejection counts a rejection at a named gate.
func (r *Recorder) RecordGateRejection(gate string) {
	r.gateRejections.WithLabelValues(gate).Inc()
}

// RecordCommand counts a command by type and outcome.
func (r *Recorder) RecordCommand(cmdType, outcome string) {
	r.commands.WithLabelValues(cmdType, outcome).Inc()
}

// RecordRetry counts one command re-enqueue.
func (r *Recorder) RecordRetry() { r.retries.Inc() }

// RecordInvalidation counts a signal invalidation by indicator.
func (r *Recorder) RecordInvalidation(indicator string) {
	r.invalidations.WithLabelValues(indicator).Inc()
}

// RecordReplacement counts one replacement close.
func (r *Recorder) RecordReplacement() { r.replacements.Inc() }

// SetBreakerTripped reflects the circuit breaker state.
func (r *Recorder) SetBreakerTripped(tripped bool) {
	if tripped {
		r.breakerTripped.Set(1)
	} else {
		r.breakerTripped.Set(0)
	}
}

// RecordLockFailOpen counts one fail-open admission.
func (r *Recorder) RecordLockFailOpen() { r.lockFailOpen.Inc() }

// SetPendingCommands reflects the tracker's pending map size.
func (r *Recorder) SetPendingCommands(n int) {
	r.pendingCommands.Set(float64(n))
}

// ObserveGateChain records one gate chain evaluation duration.
func (r *Recorder) ObserveGateChain(seconds float64) {
	r.gateChainDuration.Observe(seconds)
}
