package capstore

import (
	"fmt"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
	"github.com/lion-dev/lion/internal/domain/policy"
)

// variantToRequestKind maps a capability's Variant to the RequestKind a
// policy Object filter would use to describe it, so the mapper can reuse
// the §4.B object-matching predicate when scanning for applicable rules.
func variantToRequestKind(v capabilities.Variant) domain.RequestKind {
	switch v {
	case capabilities.VariantFile:
		return domain.RequestFile
	case capabilities.VariantNetwork:
		return domain.RequestNetwork
	case capabilities.VariantPluginCall:
		return domain.RequestPluginCall
	case capabilities.VariantMemory:
		return domain.RequestMemory
	case capabilities.VariantMessage:
		return domain.RequestMessage
	default:
		return domain.RequestCustom
	}
}

// Mapper implements spec.md §4.C's apply_policy_constraints: project every
// applicable AllowWithConstraints / TransformToConstraints rule onto a
// stored capability and narrow it in place. Grounded on
// lion_policy/src/integration/mapper.rs, which performs the same
// fetch-scan-constrain-replace sequence against the Rust capability store.
type Mapper struct {
	store    *Store
	rules    *policy.Store
	groupsOf func(domain.PluginID) []string
}

// NewMapper builds a Mapper over a capability store and the policy rules
// that constrain it. groupsOf may be nil if group subjects are unused.
func NewMapper(store *Store, rules *policy.Store, groupsOf func(domain.PluginID) []string) *Mapper {
	return &Mapper{store: store, rules: rules, groupsOf: groupsOf}
}

// ApplyPolicyConstraints narrows the capability at (plugin, id) by every
// matching AllowWithConstraints/TransformToConstraints rule whose object
// variant matches the capability's variant. It is idempotent: applying it
// twice in a row without an intervening policy mutation yields the same
// capability the second time, since Constrain only ever narrows rights
// monotonically (spec.md §8 "repeated apply_policy_constraints is a no-op
// after the first application").
func (m *Mapper) ApplyPolicyConstraints(plugin domain.PluginID, id domain.CapabilityID) error {
	cap, ok := m.store.Get(plugin, id)
	if !ok {
		return fmt.Errorf("capstore: no capability %s for plugin %s", id, plugin)
	}

	var groups []string
	if m.groupsOf != nil {
		groups = m.groupsOf(plugin)
	}

	kind := variantToRequestKind(cap.Variant())
	rules := m.rules.List(func(r policy.Rule) bool {
		if !r.Subject.Matches(plugin, groups) {
			return false
		}
		if r.Action.Kind != policy.ActionAllowWithConstraints && r.Action.Kind != policy.ActionTransformToConstraints {
			return false
		}
		return r.Object.Any || r.Object.Kind == kind
	})

	var collected []capabilities.Constraint
	for _, rule := range rules {
		parsed, err := capabilities.ParseConstraints(rule.Action.Constraints)
		if err != nil {
			return fmt.Errorf("capstore: policy rule %s: %w", rule.ID, err)
		}
		collected = append(collected, parsed...)
	}

	if len(collected) == 0 {
		return nil
	}

	narrowed, err := cap.Constrain(collected)
	if err != nil {
		return fmt.Errorf("capstore: constraining capability %s: %w", id, err)
	}

	if !m.store.Replace(plugin, id, narrowed) {
		return fmt.Errorf("capstore: capability %s vanished during constrain", id)
	}
	return nil
}

// ApplyPolicyConstraintsAll runs ApplyPolicyConstraints over every
// capability currently held by plugin, used after a policy mutation to
// re-tighten the plugin's whole inventory.
func (m *Mapper) ApplyPolicyConstraintsAll(plugin domain.PluginID) error {
	for _, id := range m.store.ListIDs(plugin) {
		if err := m.ApplyPolicyConstraints(plugin, id); err != nil {
			return err
		}
	}
	return nil
}
