package sandbox

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// wazeroInstance is the concrete Instance backed by a compiled wazero
// module. Grounded on internal/wasm/runtime.go and internal/wasm/plugin.go:
// one wazero.Runtime hosts one compiled module, WASI is instantiated for
// basic syscalls, and handle_message goes through a guest-exported
// function operating on a byte buffer.
type wazeroInstance struct {
	runtime wazero.Runtime
	module  wazero.CompiledModule
	limits  Limits

	mu            sync.Mutex
	guest         api.Module
	memoryUsage   uint64
	executionTime time.Duration
}

// NewWazeroFactory returns a Factory that compiles moduleBytes against a
// fresh wazero runtime for every call, isolating each plugin's memory per
// reglet's createInstance convention ("Each call gets isolated WASM
// memory"). The limits are kept on the instance but not applied to the
// wazero runtime: neither guest memory nor execution time is capped here.
func NewWazeroFactory() Factory {
	return func(ctx context.Context, moduleBytes []byte, limits Limits) (Instance, error) {
		rt := wazero.NewRuntime(ctx)
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
		}

		module, err := rt.CompileModule(ctx, moduleBytes)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("sandbox: compile module: %w", err)
		}

		return &wazeroInstance{runtime: rt, module: module, limits: limits}, nil
	}
}

func (w *wazeroInstance) moduleConfig() wazero.ModuleConfig {
	return wazero.NewModuleConfig().
		WithRandSource(rand.Reader).
		WithSysWalltime().
		WithSysNanotime()
}

func (w *wazeroInstance) Initialize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	guest, err := w.runtime.InstantiateModule(ctx, w.module, w.moduleConfig())
	if err != nil {
		return fmt.Errorf("sandbox: instantiate module: %w", err)
	}

	if initFn := guest.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			_ = guest.Close(ctx)
			return fmt.Errorf("sandbox: run _initialize: %w", err)
		}
	}

	w.guest = guest
	return nil
}

// HandleMessage calls the guest's exported "handle_message" function,
// writing input into guest memory and reading the JSON result back out.
// The wire convention (copy the input bytes into a buffer obtained from
// the guest's exported "allocate", call with pointer+length, read the
// result from the pointer (high 32 bits) and length (low 32 bits) packed
// into the single u64 return value) mirrors internal/wasm/hostfuncs/wireformat.go's buffer-passing scheme.
func (w *wazeroInstance) HandleMessage(ctx context.Context, input []byte) ([]byte, error) {
	w.mu.Lock()
	guest := w.guest
	w.mu.Unlock()

	if guest == nil {
		return nil, fmt.Errorf("sandbox: instance not initialized")
	}

	started := time.Now()
	defer func() {
		w.mu.Lock()
		w.executionTime += time.Since(started)
		if mem := guest.Memory(); mem != nil {
			w.memoryUsage = uint64(mem.Size())
		}
		w.mu.Unlock()
	}()

	handleFn := guest.ExportedFunction("handle_message")
	if handleFn == nil {
		return nil, fmt.Errorf("sandbox: guest does not export handle_message")
	}

	allocFn := guest.ExportedFunction("allocate")
	if allocFn == nil {
		return nil, fmt.Errorf("sandbox: guest does not export allocate")
	}

	results, err := allocFn.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("sandbox: allocate guest buffer: %w", err)
	}
	ptr := uint32(results[0])

	mem := guest.Memory()
	if mem == nil || !mem.Write(ptr, input) {
		return nil, fmt.Errorf("sandbox: write guest input buffer")
	}

	resultPacked, err := handleFn.Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("sandbox: call handle_message: %w", err)
	}

	resultPtr := uint32(resultPacked[0] >> 32)
	resultLen := uint32(resultPacked[0])

	out, ok := mem.Read(resultPtr, resultLen)
	if !ok {
		return nil, fmt.Errorf("sandbox: read guest output buffer")
	}

	outCopy := make([]byte, len(out))
	copy(outCopy, out)
	return outCopy, nil
}

func (w *wazeroInstance) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	guest := w.guest
	w.guest = nil
	w.mu.Unlock()

	if guest != nil {
		if err := guest.Close(ctx); err != nil {
			return fmt.Errorf("sandbox: close guest module: %w", err)
		}
	}
	return w.runtime.Close(ctx)
}

func (w *wazeroInstance) MemoryUsage() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.memoryUsage
}

func (w *wazeroInstance) ExecutionTime() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.executionTime
}

var _ Instance = (*wazeroInstance)(nil)
