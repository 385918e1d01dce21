package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lion-dev/lion/internal/capstore"
	"github.com/lion-dev/lion/internal/lionerr"
	"github.com/lion-dev/lion/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoInstance is a fake sandbox.Instance that echoes its input back,
// standing in for a real wazero-backed instance in tests.
type echoInstance struct {
	memory uint64
}

func (e *echoInstance) Initialize(ctx context.Context) error { return nil }

func (e *echoInstance) HandleMessage(ctx context.Context, input []byte) ([]byte, error) {
	return input, nil
}

func (e *echoInstance) Shutdown(ctx context.Context) error { return nil }
func (e *echoInstance) MemoryUsage() uint64                { return e.memory }
func (e *echoInstance) ExecutionTime() time.Duration        { return 0 }

func echoFactory() sandbox.Factory {
	return func(ctx context.Context, moduleBytes []byte, limits sandbox.Limits) (sandbox.Instance, error) {
		return &echoInstance{}, nil
	}
}

func validManifest() *Manifest {
	return &Manifest{
		Name:       "greeter",
		Version:    "1.0.0",
		EntryPoint: "main.wasm",
		Functions: map[string]*FunctionSpec{
			"greet": {Description: "says hello"},
		},
	}
}

func TestRegistry_LoadThenGet(t *testing.T) {
	registry := NewRegistry(capstore.NewStore(), echoFactory())

	pluginID, err := registry.Load(context.Background(), LoadRequest{Manifest: validManifest()})
	require.NoError(t, err)

	manifest, state, _, err := registry.Get(pluginID)
	require.NoError(t, err)
	assert.Equal(t, "greeter", manifest.Name)
	assert.Equal(t, StateReady, state)
}

func TestRegistry_LoadRejectsInvalidManifest(t *testing.T) {
	registry := NewRegistry(capstore.NewStore(), echoFactory())

	_, err := registry.Load(context.Background(), LoadRequest{Manifest: &Manifest{Name: "", Version: "1.0.0", EntryPoint: "x"}})
	require.Error(t, err)
	var pluginErr *lionerr.PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, lionerr.PluginInvalidManifest, pluginErr.Kind)
}

func TestRegistry_InvokeRoundTripsThroughSandbox(t *testing.T) {
	registry := NewRegistry(capstore.NewStore(), echoFactory())
	pluginID, err := registry.Load(context.Background(), LoadRequest{Manifest: validManifest()})
	require.NoError(t, err)

	result, err := registry.Invoke(context.Background(), pluginID, "greet", map[string]any{"name": "lion"})
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"name": "lion"})
	var expected any
	_ = json.Unmarshal(raw, &expected)
	assert.Equal(t, expected, result)

	_, state, metrics, err := registry.Get(pluginID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, uint64(1), metrics.InvocationCount)
}

func TestRegistry_InvokeUnknownFunctionFails(t *testing.T) {
	registry := NewRegistry(capstore.NewStore(), echoFactory())
	pluginID, err := registry.Load(context.Background(), LoadRequest{Manifest: validManifest()})
	require.NoError(t, err)

	_, err = registry.Invoke(context.Background(), pluginID, "nonexistent", nil)
	require.Error(t, err)
	var pluginErr *lionerr.PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, lionerr.PluginInvokeError, pluginErr.Kind)
}

func TestRegistry_RemoveDropsPluginAndCapabilities(t *testing.T) {
	caps := capstore.NewStore()
	registry := NewRegistry(caps, echoFactory())
	pluginID, err := registry.Load(context.Background(), LoadRequest{Manifest: validManifest()})
	require.NoError(t, err)

	require.NoError(t, registry.Remove(context.Background(), pluginID))

	_, _, _, err = registry.Get(pluginID)
	require.Error(t, err)
	assert.Empty(t, caps.List(pluginID))
}

func TestRegistry_InvokeOnRemovedPluginIsNotFound(t *testing.T) {
	registry := NewRegistry(capstore.NewStore(), echoFactory())
	pluginID, err := registry.Load(context.Background(), LoadRequest{Manifest: validManifest()})
	require.NoError(t, err)
	require.NoError(t, registry.Remove(context.Background(), pluginID))

	_, err = registry.Invoke(context.Background(), pluginID, "greet", nil)
	require.Error(t, err)
	var pluginErr *lionerr.PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, lionerr.PluginNotFound, pluginErr.Kind)
}

func TestManifest_ValidateRejectsBadVersion(t *testing.T) {
	m := &Manifest{Name: "x", Version: "not-a-version", EntryPoint: "main.wasm"}
	err := m.Validate(nil)
	require.Error(t, err)
}

func TestManifest_ValidateEnforcesPolicyCheck(t *testing.T) {
	m := &Manifest{Name: "x", Version: "1.0.0", EntryPoint: "main.wasm", Permissions: []string{"net:connect"}}
	err := m.Validate(func(permission string) error {
		return assertNever(permission)
	})
	require.Error(t, err)
}

func assertNever(permission string) error {
	return &lionerr.PolicyError{Kind: lionerr.PolicyNoMatchingRule, Reason: "test denies " + permission}
}

func TestFunctionSpec_SchemaValidation(t *testing.T) {
	fn := &FunctionSpec{
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
		},
	}
	require.NoError(t, fn.compile())

	require.NoError(t, fn.ValidateInput(map[string]any{"name": "lion"}))
	require.Error(t, fn.ValidateInput(map[string]any{}))
}
