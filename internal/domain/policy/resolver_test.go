package policy

import (
	"testing"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_DenyOverridesAllowWithoutPriority(t *testing.T) {
	// spec.md §8 scenario 2
	store := NewStore()
	plugin := domain.PluginID("P")

	store.Add(Rule{
		ID:       "R1",
		Subject:  PluginSubject(plugin),
		Object:   Object{Kind: domain.RequestFile, PathPrefix: "/tmp"},
		Action:   Action{Kind: ActionAllow},
		Priority: 0,
	})
	store.Add(Rule{
		ID:       "R2",
		Subject:  PluginSubject(plugin),
		Object:   Object{Kind: domain.RequestFile, PathPrefix: "/etc"},
		Action:   Action{Kind: ActionDeny},
		Priority: 0,
	})

	resolver := NewResolver(store, nil)

	result, err := resolver.Evaluate(plugin, domain.FileRequest("/etc/passwd", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalDeny, result.Kind)

	result, err = resolver.Evaluate(plugin, domain.FileRequest("/tmp/x", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalAllow, result.Kind)

	result, err = resolver.Evaluate(plugin, domain.FileRequest("/home/x", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalNoPolicy, result.Kind)
}

func TestResolver_PrioritySortingAndTieBreak(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")

	store.Add(Rule{ID: "low", Subject: AnySubject(), Object: AnyObject(), Action: Action{Kind: ActionDeny}, Priority: 0})
	store.Add(Rule{ID: "high", Subject: AnySubject(), Object: AnyObject(), Action: Action{Kind: ActionAllow}, Priority: 10})

	resolver := NewResolver(store, nil)
	result, err := resolver.Evaluate(plugin, domain.FileRequest("/x", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalAllow, result.Kind)
	assert.Equal(t, "high", result.MatchedRule)
}

func TestResolver_AuditContinuesScanning(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")

	var audited []string
	store.Add(Rule{ID: "audit", Subject: AnySubject(), Object: AnyObject(), Action: Action{Kind: ActionAudit}, Priority: 100})
	store.Add(Rule{ID: "allow", Subject: AnySubject(), Object: AnyObject(), Action: Action{Kind: ActionAllow}, Priority: 0})

	resolver := NewResolver(store, nil)
	resolver.SetAuditSink(func(_ domain.PluginID, _ domain.AccessRequest, ruleID string) {
		audited = append(audited, ruleID)
	})

	result, err := resolver.Evaluate(plugin, domain.FileRequest("/x", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalAllow, result.Kind)
	assert.Equal(t, []string{"audit"}, audited)
}

func TestResolver_CacheInvalidatedOnMutation(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")
	resolver := NewResolver(store, nil)

	result, err := resolver.Evaluate(plugin, domain.FileRequest("/x", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalNoPolicy, result.Kind)

	store.Add(Rule{ID: "allow", Subject: AnySubject(), Object: AnyObject(), Action: Action{Kind: ActionAllow}})

	result, err = resolver.Evaluate(plugin, domain.FileRequest("/x", true, false, false))
	require.NoError(t, err)
	assert.Equal(t, EvalAllow, result.Kind)
}

func TestResolver_ConditionGatesMatch(t *testing.T) {
	store := NewStore()
	plugin := domain.PluginID("P")

	program, err := CompileCondition(`Port == 443`)
	require.NoError(t, err)

	store.Add(Rule{
		ID:        "https-only",
		Subject:   AnySubject(),
		Object:    Object{Kind: domain.RequestNetwork},
		Action:    Action{Kind: ActionAllow},
		Condition: program,
	})

	resolver := NewResolver(store, nil)

	result, err := resolver.Evaluate(plugin, domain.NetworkRequest("example.com", 443, true, false))
	require.NoError(t, err)
	assert.Equal(t, EvalAllow, result.Kind)

	result, err = resolver.Evaluate(plugin, domain.NetworkRequest("example.com", 80, true, false))
	require.NoError(t, err)
	assert.Equal(t, EvalNoPolicy, result.Kind)
}
