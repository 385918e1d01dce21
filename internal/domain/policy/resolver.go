package policy

import (
	"fmt"
	"sync"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
)

// AuditSink receives a record every time an Audit action is encountered
// during evaluation. Nil is a valid no-op sink.
type AuditSink func(plugin domain.PluginID, request domain.AccessRequest, ruleID string)

// Resolver implements the evaluate algorithm of spec.md §4.B. A rule's
// constraint strings are parsed once and cached by rule ID — grounded on
// lion_policy/src/integration/mapper.rs's constraint_cache — rather than
// re-parsed on every evaluation; the cache is invalidated whenever the
// backing Store mutates. The rule walk itself (which rule wins for a
// given plugin+request) is never cached, since finer object filters
// (path prefix, host, topic) make the winner request-dependent even
// within one (plugin, request-kind) pair.
type Resolver struct {
	store     *Store
	groups    func(domain.PluginID) []string
	auditSink AuditSink

	mu               sync.Mutex
	constraintsCache map[string][]capabilities.Constraint
}

// NewResolver builds a Resolver over store. groupsOf resolves a plugin's
// group memberships for Subject matching; pass nil if groups are unused.
func NewResolver(store *Store, groupsOf func(domain.PluginID) []string) *Resolver {
	r := &Resolver{
		store:            store,
		groups:           groupsOf,
		constraintsCache: make(map[string][]capabilities.Constraint),
	}
	store.OnMutate(r.invalidate)
	return r
}

// SetAuditSink installs a callback invoked for every Audit action seen
// during evaluation.
func (r *Resolver) SetAuditSink(sink AuditSink) {
	r.mu.Lock()
	r.auditSink = sink
	r.mu.Unlock()
}

func (r *Resolver) invalidate() {
	r.mu.Lock()
	r.constraintsCache = make(map[string][]capabilities.Constraint)
	r.mu.Unlock()
}

// constraintsFor returns the parsed constraints for rule, parsing and
// caching them on first use. Repeated calls for the same unmutated rule
// are a cache hit (spec.md §8 "repeated apply_policy_constraints is a
// no-op after the first application").
func (r *Resolver) constraintsFor(rule Rule) ([]capabilities.Constraint, error) {
	r.mu.Lock()
	if cached, ok := r.constraintsCache[rule.ID]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	parsed, err := capabilities.ParseConstraints(rule.Action.Constraints)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.constraintsCache[rule.ID] = parsed
	r.mu.Unlock()
	return parsed, nil
}

// Evaluate resolves request against the policy store for plugin,
// implementing spec.md §4.B steps 1-4.
func (r *Resolver) Evaluate(plugin domain.PluginID, request domain.AccessRequest) (EvaluationResult, error) {
	var groups []string
	if r.groups != nil {
		groups = r.groups(plugin)
	}

	matching := r.store.List(func(rule Rule) bool {
		if !rule.Subject.Matches(plugin, groups) {
			return false
		}
		if !rule.Object.Matches(request) {
			return false
		}
		ok, err := evalCondition(rule.Condition, plugin, request)
		return err == nil && ok
	})

	for _, rule := range matching {
		switch rule.Action.Kind {
		case ActionAudit:
			r.mu.Lock()
			sink := r.auditSink
			r.mu.Unlock()
			if sink != nil {
				sink(plugin, request, rule.ID)
			}
			continue

		case ActionAllow:
			return Allow(rule.ID), nil

		case ActionDeny:
			return Deny(rule.ID), nil

		case ActionAllowWithConstraints, ActionTransformToConstraints:
			constraints, err := r.constraintsFor(rule)
			if err != nil {
				return EvaluationResult{}, fmt.Errorf("policy rule %s: %w", rule.ID, err)
			}
			return EvaluationResult{
				Kind:        EvalAllowWithConstraint,
				Constraints: constraints,
				MatchedRule: rule.ID,
				Transform:   rule.Action.Kind == ActionTransformToConstraints,
			}, nil
		}
	}

	return NoPolicy(), nil
}
