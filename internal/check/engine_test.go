package check

import (
	"testing"

	"github.com/lion-dev/lion/internal/capstore"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
	"github.com/lion-dev/lion/internal/domain/policy"
	"github.com/lion-dev/lion/internal/lionerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_NoPolicyDeniesByDefault(t *testing.T) {
	rules := policy.NewStore()
	resolver := policy.NewResolver(rules, nil)
	caps := capstore.NewStore()
	engine := NewEngine(resolver, caps, nil)

	err := engine.Check(domain.PluginID("P"), domain.FileRequest("/etc/passwd", true, false, false))
	require.Error(t, err)
	var capErr *lionerr.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, lionerr.CapPermissionDenied, capErr.Kind)
}

func TestEngine_AllowWithoutMatchingCapabilityIsNoCapability(t *testing.T) {
	plugin := domain.PluginID("P")
	rules := policy.NewStore()
	rules.Add(policy.Rule{ID: "allow-all", Subject: policy.AnySubject(), Object: policy.AnyObject(), Action: policy.Action{Kind: policy.ActionAllow}})
	resolver := policy.NewResolver(rules, nil)
	caps := capstore.NewStore()
	engine := NewEngine(resolver, caps, nil)

	err := engine.Check(plugin, domain.FileRequest("/tmp/x", true, false, false))
	require.Error(t, err)
	var capErr *lionerr.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, lionerr.CapNoCapability, capErr.Kind)
}

func TestEngine_AllowWithHeldCapabilitySucceeds(t *testing.T) {
	plugin := domain.PluginID("P")
	rules := policy.NewStore()
	rules.Add(policy.Rule{ID: "allow-all", Subject: policy.AnySubject(), Object: policy.AnyObject(), Action: policy.Action{Kind: policy.ActionAllow}})
	resolver := policy.NewResolver(rules, nil)

	caps := capstore.NewStore()
	caps.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, false, false))

	engine := NewEngine(resolver, caps, nil)
	require.NoError(t, engine.Check(plugin, domain.FileRequest("/tmp/x", true, false, false)))
}

func TestEngine_AllowWithConstraintsSynthesizesTransientCapability(t *testing.T) {
	plugin := domain.PluginID("P")
	rules := policy.NewStore()
	rules.Add(policy.Rule{
		ID:      "scoped-tmp",
		Subject: policy.AnySubject(),
		Object:  policy.Object{Kind: domain.RequestFile},
		Action: policy.Action{
			Kind:        policy.ActionAllowWithConstraints,
			Constraints: []string{"file_path:/tmp", "file_operation:write=false"},
		},
	})
	resolver := policy.NewResolver(rules, nil)
	caps := capstore.NewStore() // plugin holds no capabilities of its own

	engine := NewEngine(resolver, caps, nil)

	require.NoError(t, engine.Check(plugin, domain.FileRequest("/tmp/x", true, false, false)))

	err := engine.Check(plugin, domain.FileRequest("/tmp/x", false, true, false))
	require.Error(t, err)

	err = engine.Check(plugin, domain.FileRequest("/etc/passwd", true, false, false))
	require.Error(t, err)
}

func TestEngine_DenyOverridesHeldCapability(t *testing.T) {
	plugin := domain.PluginID("P")
	rules := policy.NewStore()
	rules.Add(policy.Rule{ID: "deny-all", Subject: policy.AnySubject(), Object: policy.AnyObject(), Action: policy.Action{Kind: policy.ActionDeny}})
	resolver := policy.NewResolver(rules, nil)

	caps := capstore.NewStore()
	caps.Add(plugin, capabilities.NewFileCap([]string{"/tmp"}, true, true, true))

	engine := NewEngine(resolver, caps, nil)
	err := engine.Check(plugin, domain.FileRequest("/tmp/x", true, false, false))
	require.Error(t, err)
}
