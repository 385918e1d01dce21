package workflow

import (
	"testing"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_LinearChainIsTerminalOnlyAtEnd(t *testing.T) {
	def, err := Build([]Node{
		{ID: "a"},
		{ID: "b", DependsOn: []domain.NodeID{"a"}},
		{ID: "c", DependsOn: []domain.NodeID{"b"}},
	})
	require.NoError(t, err)
	assert.False(t, def.isTerminal("a"))
	assert.False(t, def.isTerminal("b"))
	assert.True(t, def.isTerminal("c"))
	assert.Equal(t, []domain.NodeID{"b"}, def.dependents["a"])
}

func TestBuild_RejectsCycle(t *testing.T) {
	_, err := Build([]Node{
		{ID: "a", DependsOn: []domain.NodeID{"b"}},
		{ID: "b", DependsOn: []domain.NodeID{"a"}},
	})
	require.Error(t, err)
}

func TestBuild_RejectsUnknownDependency(t *testing.T) {
	_, err := Build([]Node{
		{ID: "a", DependsOn: []domain.NodeID{"ghost"}},
	})
	require.Error(t, err)
}

func TestBuild_RejectsDuplicateNodeID(t *testing.T) {
	_, err := Build([]Node{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
}

func TestMergeInputs_NoDependenciesReturnsWorkflowInput(t *testing.T) {
	result := mergeInputs(map[string]any{"x": 1}, nil)
	assert.Equal(t, map[string]any{"x": 1}, result)
}

func TestMergeInputs_SingleScalarDependencyOverridesWorkflowInput(t *testing.T) {
	result := mergeInputs(map[string]any{"x": 1}, []any{42})
	assert.Equal(t, 42, result)
}

func TestMergeInputs_ObjectUnionSuccessorKeysWin(t *testing.T) {
	result := mergeInputs(
		map[string]any{"a": 1, "b": 1},
		[]any{map[string]any{"b": 2}, map[string]any{"b": 3, "c": 3}},
	)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 3}, result)
}

func TestCalculateBackoff_NonExponentialIsFlat(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 2}
	assert.Equal(t, calculateBackoff(p, 0), calculateBackoff(p, 5))
}

func TestCalculateBackoff_ExponentialDoublesPerAttempt(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 1, Exponential: true}
	first := calculateBackoff(p, 0)
	second := calculateBackoff(p, 1)
	assert.Equal(t, first*2, second)
}
