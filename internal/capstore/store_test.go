package capstore

import (
	"testing"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
	"github.com/lion-dev/lion/internal/domain/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddGetList(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")

	id := store.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, false, false))

	got, ok := store.Get(plugin, id)
	require.True(t, ok)
	assert.Equal(t, capabilities.VariantFile, got.Variant())

	all := store.List(plugin)
	assert.Len(t, all, 1)
}

func TestStore_RemoveAndRemovePlugin(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")

	id1 := store.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, false, false))
	id2 := store.Add(plugin, capabilities.NewFileCap([]string{"/var"}, true, false, false))

	store.Remove(plugin, id1)
	assert.Len(t, store.List(plugin), 1)
	assert.Equal(t, []domain.CapabilityID{id2}, store.ListIDs(plugin))

	store.RemovePlugin(plugin)
	assert.Empty(t, store.List(plugin))
}

func TestStore_ReplaceRequiresExistingKey(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")

	ok := store.Replace(plugin, domain.NewCapabilityID(), capabilities.NewFileCap(nil, false, false, false))
	assert.False(t, ok)

	id := store.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, true, false))
	ok = store.Replace(plugin, id, capabilities.NewFileCap([]string{"/tmp"}, true, false, false))
	assert.True(t, ok)

	got, _ := store.Get(plugin, id)
	file := got.(*capabilities.FileCap)
	assert.True(t, file.Read)
	assert.False(t, file.Write)
}

func TestMapper_ApplyPolicyConstraintsNarrowsAndIsIdempotent(t *testing.T) {
	plugin := domain.PluginID("P")

	capStore := NewStore()
	id := capStore.Add(plugin, capabilities.NewFileCap([]string{"/tmp", "/etc"}, true, true, false))

	ruleStore := policy.NewStore()
	ruleStore.Add(policy.Rule{
		ID:      "narrow-to-tmp-readonly",
		Subject: policy.PluginSubject(plugin),
		Object:  policy.Object{Kind: domain.RequestFile},
		Action: policy.Action{
			Kind:        policy.ActionAllowWithConstraints,
			Constraints: []string{"file_path:/tmp", "file_operation:write=false"},
		},
	})

	mapper := NewMapper(capStore, ruleStore, nil)

	require.NoError(t, mapper.ApplyPolicyConstraints(plugin, id))

	got, ok := capStore.Get(plugin, id)
	require.True(t, ok)
	file := got.(*capabilities.FileCap)
	assert.Equal(t, []string{"/tmp"}, file.Paths)
	assert.False(t, file.Write)
	assert.True(t, file.Read)

	// Re-applying must be a no-op: the narrowed capability constrained
	// again by the same rule set yields an identical result.
	require.NoError(t, mapper.ApplyPolicyConstraints(plugin, id))
	got2, _ := capStore.Get(plugin, id)
	file2 := got2.(*capabilities.FileCap)
	assert.Equal(t, file.Paths, file2.Paths)
	assert.Equal(t, file.Read, file2.Read)
	assert.Equal(t, file.Write, file2.Write)
}

func TestMapper_NoMatchingRuleLeavesCapabilityUntouched(t *testing.T) {
	plugin := domain.PluginID("P")

	capStore := NewStore()
	id := capStore.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, false, false))

	ruleStore := policy.NewStore()
	mapper := NewMapper(capStore, ruleStore, nil)

	require.NoError(t, mapper.ApplyPolicyConstraints(plugin, id))

	got, _ := capStore.Get(plugin, id)
	file := got.(*capabilities.FileCap)
	assert.Equal(t, []string{"/tmp"}, file.Paths)
}

func TestMapper_VariantMismatchIsIgnored(t *testing.T) {
	plugin := domain.PluginID("P")

	capStore := NewStore()
	id := capStore.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, true, false))

	ruleStore := policy.NewStore()
	ruleStore.Add(policy.Rule{
		ID:      "network-only",
		Subject: policy.PluginSubject(plugin),
		Object:  policy.Object{Kind: domain.RequestNetwork},
		Action: policy.Action{
			Kind:        policy.ActionAllowWithConstraints,
			Constraints: []string{"network_operation:connect=false"},
		},
	})

	mapper := NewMapper(capStore, ruleStore, nil)
	require.NoError(t, mapper.ApplyPolicyConstraints(plugin, id))

	got, _ := capStore.Get(plugin, id)
	file := got.(*capabilities.FileCap)
	assert.True(t, file.Write)
}
