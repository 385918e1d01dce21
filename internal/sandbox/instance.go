// Package sandbox defines the narrow interface the plugin lifecycle
// manager uses to host a plugin's compiled code, plus a concrete
// implementation backed by tetratelabs/wazero. Spec.md §4.F treats the
// sandbox as opaque to the core: richer guarantees (WebAssembly fuel,
// memory limits) are configured at construction and never leak into the
// lifecycle manager's view of an instance.
package sandbox

import (
	"context"
	"time"
)

// Instance is the narrow contract the lifecycle manager drives a hosted
// plugin through: initialize once, exchange JSON messages, shut down
// once, and observe resource usage in between.
type Instance interface {
	Initialize(ctx context.Context) error
	HandleMessage(ctx context.Context, input []byte) ([]byte, error)
	Shutdown(ctx context.Context) error

	MemoryUsage() uint64
	ExecutionTime() time.Duration
}

// Factory constructs a fresh Instance from a plugin's compiled module
// bytes and manifest-declared resource limits. Each loaded plugin gets
// its own Instance, grounded on reglet's one-Plugin-per-loaded-module
// Runtime.LoadPlugin.
type Factory func(ctx context.Context, moduleBytes []byte, limits Limits) (Instance, error)

// Limits bounds what an Instance may consume, configured at construction
// time and invisible to the lifecycle manager thereafter (spec.md §4.F
// "Any richer contract ... is configured at construction time and opaque
// to the core").
type Limits struct {
	MemoryLimitMB uint64
	TimeLimitSecs uint64
}
