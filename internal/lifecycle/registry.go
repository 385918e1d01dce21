// Package lifecycle implements the plugin registry and state machine of
// spec.md §4.F: manifest validation, the Uninitialized→...→Ready state
// machine, resource-budget enforcement, and the invoke() path that
// forwards to a plugin's sandbox.Instance. Grounded on
// internal/wasm/runtime.go's one-Runtime-per-process /
// one-Plugin-per-loaded-module registry shape.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lion-dev/lion/internal/capstore"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
	"github.com/lion-dev/lion/internal/lionerr"
	"github.com/lion-dev/lion/internal/sandbox"
)

// entry is the registry's record for one loaded plugin: manifest, state,
// metrics, sandbox instance, and a snapshot of the capabilities it held
// at load time (spec.md §3 registry shape).
type entry struct {
	mu sync.Mutex

	manifest *Manifest
	state    State
	metrics  *Metrics
	instance sandbox.Instance

	capabilitiesSnapshot []domain.CapabilityID
}

// transition moves e to next if State.CanTransition permits it; it is
// the single gate every state change in the registry goes through.
// Callers must hold e.mu.
func (e *entry) transition(next State) error {
	if !e.state.CanTransition(next) {
		return errIllegalTransition(e.state, next)
	}
	e.state = next
	return nil
}

// Registry is the plugin lifecycle manager.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.PluginID]*entry

	caps        *capstore.Store
	newInstance sandbox.Factory
}

// NewRegistry builds a Registry. caps is the capability store entries are
// registered into; factory constructs a sandbox.Instance for a loaded
// module's bytes.
func NewRegistry(caps *capstore.Store, factory sandbox.Factory) *Registry {
	return &Registry{
		entries:     make(map[domain.PluginID]*entry),
		caps:        caps,
		newInstance: factory,
	}
}

// LoadRequest bundles the inputs to Load: the parsed manifest, the
// compiled module bytes the sandbox factory will host, and the
// capability grants the plugin starts with.
type LoadRequest struct {
	Manifest      *Manifest
	ModuleBytes   []byte
	InitialGrants []capabilities.Capability
	PolicyCheck   func(permission string) error
}

// Load implements spec.md §4.F load(): validate the manifest, assign a
// plugin ID, allocate metrics, register initial capability grants, and
// initialize the sandbox instance synchronously (state goes straight to
// Ready, matching the synchronous-sandbox-initialization branch of the
// spec; the async/Initializing branch is not exercised here because the
// wazero factory initializes synchronously).
func (r *Registry) Load(ctx context.Context, req LoadRequest) (domain.PluginID, error) {
	if req.Manifest == nil {
		return "", lionerr.NewPluginError(lionerr.PluginInvalidManifest, "", "manifest must not be nil", nil)
	}
	if err := req.Manifest.Validate(req.PolicyCheck); err != nil {
		return "", lionerr.NewPluginError(lionerr.PluginInvalidManifest, req.Manifest.Name, "manifest validation failed", err)
	}

	pluginID := domain.NewPluginID()

	e := &entry{
		manifest: req.Manifest,
		state:    StateInitializing,
		metrics:  newMetrics(),
	}

	if r.newInstance != nil {
		limits := sandbox.Limits{
			MemoryLimitMB: req.Manifest.Security.MemoryLimitMB,
			TimeLimitSecs: req.Manifest.Security.TimeLimitSecs,
		}
		instance, err := r.newInstance(ctx, req.ModuleBytes, limits)
		if err != nil {
			return "", lionerr.NewPluginError(lionerr.PluginLoadError, req.Manifest.Name, "sandbox construction failed", err)
		}
		if err := instance.Initialize(ctx); err != nil {
			return "", lionerr.NewPluginError(lionerr.PluginLoadError, req.Manifest.Name, "sandbox initialization failed", err)
		}
		e.instance = instance
	}
	if err := e.transition(StateReady); err != nil {
		return "", lionerr.NewPluginError(lionerr.PluginLoadError, req.Manifest.Name, "state transition failed", err)
	}

	for _, grant := range req.InitialGrants {
		id := r.caps.Add(pluginID, grant)
		e.capabilitiesSnapshot = append(e.capabilitiesSnapshot, id)
	}

	r.mu.Lock()
	r.entries[pluginID] = e
	r.mu.Unlock()

	return pluginID, nil
}

// Get retrieves the manifest, state, and metrics of a loaded plugin.
func (r *Registry) Get(plugin domain.PluginID) (manifest *Manifest, state State, metrics Metrics, err error) {
	e, ok := r.lookup(plugin)
	if !ok {
		return nil, "", Metrics{}, lionerr.NewPluginError(lionerr.PluginNotFound, string(plugin), "plugin not found", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest, e.state, *e.metrics, nil
}

// List returns the IDs of every currently registered plugin.
func (r *Registry) List() []domain.PluginID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PluginID, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

func (r *Registry) lookup(plugin domain.PluginID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[plugin]
	return e, ok
}

// Invoke implements spec.md §4.F invoke(): guard on state, check the
// memory budget, transition Ready→Running, forward to the sandbox, then
// transition back to Ready (or Error on failure).
func (r *Registry) Invoke(ctx context.Context, plugin domain.PluginID, functionName string, input any) (any, error) {
	e, ok := r.lookup(plugin)
	if !ok {
		return nil, lionerr.NewPluginError(lionerr.PluginNotFound, string(plugin), "plugin not found", nil)
	}

	e.mu.Lock()
	switch e.state {
	case StateReady:
		// proceed
	case StateUninitialized, StateInitializing:
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginWrongState, string(plugin), "plugin not initialized", nil)
	case StateDisabled:
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginWrongState, string(plugin), "plugin disabled", nil)
	case StateError:
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginWrongState, string(plugin), "plugin in error state", nil)
	default:
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginWrongState, string(plugin), "plugin busy", nil)
	}

	if e.metrics.exceedsMemoryLimit(e.manifest.Security.MemoryLimitMB) {
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginResourceExhausted, string(plugin), "memory budget exceeded", nil)
	}

	fn, ok := e.manifest.Functions[functionName]
	if !ok {
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginInvokeError, string(plugin), fmt.Sprintf("no such function %q", functionName), nil)
	}
	if err := fn.ValidateInput(input); err != nil {
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginInvokeError, string(plugin), "input failed schema validation", err)
	}

	if err := e.transition(StateRunning); err != nil {
		e.mu.Unlock()
		return nil, lionerr.NewPluginError(lionerr.PluginWrongState, string(plugin), "state transition failed", err)
	}
	instance := e.instance
	e.mu.Unlock()

	started := time.Now()
	result, err := r.callInstance(ctx, instance, input)
	duration := time.Since(started)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		_ = e.transition(StateError)
		return nil, lionerr.NewPluginError(lionerr.PluginProcessError, string(plugin), "sandbox invocation failed", err)
	}

	if err := fn.ValidateOutput(result); err != nil {
		_ = e.transition(StateError)
		return nil, lionerr.NewPluginError(lionerr.PluginInvokeError, string(plugin), "output failed schema validation", err)
	}

	memUsage := uint64(0)
	if instance != nil {
		memUsage = instance.MemoryUsage() / (1024 * 1024)
	}
	e.metrics.recordInvocation(memUsage, duration, 0)
	if err := e.transition(StateReady); err != nil {
		return nil, lionerr.NewPluginError(lionerr.PluginWrongState, string(plugin), "state transition failed", err)
	}

	return result, nil
}

func (r *Registry) callInstance(ctx context.Context, instance sandbox.Instance, input any) (any, error) {
	if instance == nil {
		return input, nil
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal invoke input: %w", err)
	}

	raw, err := instance.HandleMessage(ctx, payload)
	if err != nil {
		return nil, err
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal invoke result: %w", err)
	}
	return result, nil
}

// Remove implements spec.md §4.F remove(): drop the plugin's capabilities
// and shut down its sandbox instance.
func (r *Registry) Remove(ctx context.Context, plugin domain.PluginID) error {
	r.mu.Lock()
	e, ok := r.entries[plugin]
	if ok {
		delete(r.entries, plugin)
	}
	r.mu.Unlock()

	if !ok {
		return lionerr.NewPluginError(lionerr.PluginNotFound, string(plugin), "plugin not found", nil)
	}

	r.caps.RemovePlugin(plugin)

	e.mu.Lock()
	instance := e.instance
	e.mu.Unlock()

	if instance != nil {
		if err := instance.Shutdown(ctx); err != nil {
			return lionerr.NewPluginError(lionerr.PluginProcessError, string(plugin), "sandbox shutdown failed", err)
		}
	}
	return nil
}
