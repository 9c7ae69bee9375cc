package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// GateStatus is the outcome class of a single admission gate.
type GateStatus int

const (
	// GateAllowed passes the signal to the next gate.
	GateAllowed GateStatus = iota
	// GateRejected stops the chain with a reason.
	GateRejected
	// GateErrored means the gate could not be evaluated; the gate's
	// FailurePolicy decides what happens.
	GateErrored
)

// GateResult is the tagged verdict of one gate.
type GateResult struct {
	Gate   string
	Status GateStatus
	Reason string
	Kind   types.ErrorKind
	Err    error
}

func allowed(gate string) GateResult {
	return GateResult{Gate: gate, Status: GateAllowed}
}

func rejected(gate, reason string) GateResult {
	return GateResult{Gate: gate, Status: GateRejected, Reason: reason, Kind: types.ErrKindRiskLimit}
}

func errored(gate string, kind types.ErrorKind, err error) GateResult {
	return GateResult{Gate: gate, Status: GateErrored, Kind: kind, Err: err}
}

// FailurePolicy says what a gate evaluation error means for the signal.
type FailurePolicy int

const (
	// FailClosed rejects the signal on gate error. The default: fail
	// safe to no-trade.
	FailClosed FailurePolicy = iota
	// FailOpen lets the signal continue on gate error. Only the
	// distributed lock uses this; the duplicate-position gate remains
	// the authoritative backstop.
	FailOpen
	// FailTrip trips the circuit breaker on gate error.
	FailTrip
)

// CooldownTracker is the bounded, time-indexed stop-loss cooldown map.
// Best-effort per-process state: losing it on restart only costs the
// remaining cooldown, never correctness.
type CooldownTracker struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> cooldown expiry
	ttl     time.Duration
	clock   func() time.Time
}

// NewCooldownTracker creates a tracker with the given cooldown duration.
func NewCooldownTracker(ttl time.Duration) *CooldownTracker {
	return &CooldownTracker{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *CooldownTracker) SetClock(clock func() time.Time) { c.clock = clock }

func cooldownKey(account, symbol string) string {
	return account + ":" + symbol
}

// Record starts (or restarts) the cooldown after a stop-loss hit.
func (c *CooldownTracker) Record(account, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cooldownKey(account, symbol)] = c.clock().Add(c.ttl)
}

// Active reports whether the symbol is still cooling down and how long
// remains.
func (c *CooldownTracker) Active(account, symbol string) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.entries[cooldownKey(account, symbol)]
	if !ok {
		return false, 0
	}
	now := c.clock()
	if !now.Before(expiry) {
		delete(c.entries, cooldownKey(account, symbol))
		return false, 0
	}
	return true, expiry.Sub(now)
}

// Evict drops expired entries. Run periodically to bound the map.
func (c *CooldownTracker) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for k, expiry := range c.entries {
		if !now.Before(expiry) {
			delete(c.entries, k)
		}
	}
}

// fingerprintCache remembers recently processed signal ids so the
// admission loop skips redundant re-evaluation within a cycle window.
// Best-effort only: decisions are persisted, so a cold cache merely
// repeats work.
type fingerprintCache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	order  []string
	cap    int
	maxAge time.Duration
	clock  func() time.Time
}

func newFingerprintCache(capacity int, maxAge time.Duration) *fingerprintCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &fingerprintCache{
		seen:   make(map[string]time.Time),
		cap:    capacity,
		maxAge: maxAge,
		clock:  time.Now,
	}
}

// Seen reports whether the id was marked within maxAge.
func (f *fingerprintCache) Seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.seen[id]
	if !ok {
		return false
	}
	if f.maxAge > 0 && f.clock().Sub(at) > f.maxAge {
		delete(f.seen, id)
		return false
	}
	return true
}

// Mark records the id, evicting the oldest entry when over capacity.
func (f *fingerprintCache) Mark(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[id]; !ok {
		f.order = append(f.order, id)
	}
	f.seen[id] = f.clock()
	for len(f.order) > f.cap {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.seen, oldest)
	}
}

func formatAge(d time.Duration) string {
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// clampDecimal bounds v to [lo, hi].
func clampDecimal(v decimal.Decimal, lo, hi float64) decimal.Decimal {
	if low := decimal.NewFromFloat(lo); v.LessThan(low) {
		return low
	}
	if high := decimal.NewFromFloat(hi); v.GreaterThan(high) {
		return high
	}
	return v
}
