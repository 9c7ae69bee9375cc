// Package queue provides the push primitive carrying commands to the
// external execution bridge.
package queue

import "context"

// Queue is the boundary contract with the execution bridge: commands are
// pushed by key and drained by the bridge at its own pace.
type Queue interface {
	Push(ctx context.Context, key string, payload []byte) error
}
