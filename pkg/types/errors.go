// Package types provides the engine error taxonomy.
package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures for routing and retry decisions.
type ErrorKind string

const (
	// ErrKindValidation marks malformed or incomplete signals. Rejected,
	// logged, never retried.
	ErrKindValidation ErrorKind = "validation"
	// ErrKindRiskLimit marks gate rejections. Re-evaluated naturally on
	// the next cycle while the signal stays active.
	ErrKindRiskLimit ErrorKind = "risk_limit"
	// ErrKindExecution marks downstream terminal failures or timeouts.
	ErrKindExecution ErrorKind = "execution"
	// ErrKindSystemic marks breached loss thresholds or repeated
	// execution failures; trips the circuit breaker.
	ErrKindSystemic ErrorKind = "systemic"
	// ErrKindTransient marks lock or store blips; fail-open for the lock
	// only, every other gate fails closed.
	ErrKindTransient ErrorKind = "transient"
)

// EngineError wraps an error with its taxonomy kind.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewError builds a classified engine error.
func NewError(kind ErrorKind, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WrapError classifies an existing error.
func WrapError(kind ErrorKind, err error) *EngineError {
	return &EngineError{Kind: kind, Err: err}
}

// KindOf extracts the error kind, defaulting to transient for
// unclassified errors so callers stay conservative.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrKindTransient
}
