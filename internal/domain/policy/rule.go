// Package policy implements the policy rule store and evaluation
// algorithm of spec.md §4.B: rules that constrain which AccessRequests a
// plugin may have permitted, adjudicated independently of — and prior to
// — the plugin's held capabilities.
package policy

import (
	"github.com/expr-lang/expr/vm"
	"github.com/lion-dev/lion/internal/domain"
)

// SubjectKind discriminates who a rule applies to.
type SubjectKind string

const (
	SubjectAny    SubjectKind = "any"
	SubjectPlugin SubjectKind = "plugin"
	SubjectGroup  SubjectKind = "group"
)

// Subject names who a PolicyRule's action applies to.
type Subject struct {
	Kind SubjectKind
	ID   string // meaningful when Kind is SubjectPlugin or SubjectGroup
}

// AnySubject matches every plugin.
func AnySubject() Subject { return Subject{Kind: SubjectAny} }

// PluginSubject matches exactly one plugin.
func PluginSubject(id domain.PluginID) Subject {
	return Subject{Kind: SubjectPlugin, ID: string(id)}
}

// GroupSubject matches every plugin in a named group.
func GroupSubject(id string) Subject {
	return Subject{Kind: SubjectGroup, ID: id}
}

// Matches reports whether the subject applies to plugin, given the set of
// groups plugin belongs to (group membership is a capability-store-level
// concept threaded through by the caller).
func (s Subject) Matches(plugin domain.PluginID, groups []string) bool {
	switch s.Kind {
	case SubjectAny:
		return true
	case SubjectPlugin:
		return s.ID == string(plugin)
	case SubjectGroup:
		for _, g := range groups {
			if g == s.ID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Object describes what kind of AccessRequest a rule governs, plus the
// fine-grained scope match ("object is Any or of the same variant as
// request — finer object filtering, e.g. file-prefix match, is applied to
// eliminate non-applicable rules", spec.md §4.B step 1).
type Object struct {
	Any  bool
	Kind domain.RequestKind

	// Fine-grained filters, meaningful only for the matching Kind. A zero
	// value (empty string) means "no additional filter — match any value
	// for this attribute".
	PathPrefix string // RequestFile
	Host       string // RequestNetwork
	Topic      string // RequestMessage
}

// AnyObject matches every request.
func AnyObject() Object { return Object{Any: true} }

// Matches reports whether the object applies to request, including the
// finer scope filter when one is set.
func (o Object) Matches(request domain.AccessRequest) bool {
	if o.Any {
		return true
	}
	if o.Kind != request.Kind {
		return false
	}
	switch o.Kind {
	case domain.RequestFile:
		if o.PathPrefix != "" && !pathHasPrefix(request.Path, o.PathPrefix) {
			return false
		}
	case domain.RequestNetwork:
		if o.Host != "" && request.Host != o.Host {
			return false
		}
	case domain.RequestMessage:
		if o.Topic != "" && request.Topic != o.Topic {
			return false
		}
	}
	return true
}

func pathHasPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

// ActionKind discriminates a rule's action.
type ActionKind string

const (
	ActionAllow                  ActionKind = "allow"
	ActionDeny                   ActionKind = "deny"
	ActionAllowWithConstraints   ActionKind = "allow_with_constraints"
	ActionTransformToConstraints ActionKind = "transform_to_constraints"
	ActionAudit                  ActionKind = "audit"
)

// Action is the effect a matching rule produces.
type Action struct {
	Kind        ActionKind
	Constraints []string // raw constraint strings, meaningful for the two *WithConstraints kinds
}

// Rule is one entry in the policy store (spec.md §3 PolicyRule).
type Rule struct {
	ID       string
	Subject  Subject
	Object   Object
	Action   Action
	Priority int

	// Condition is an optional boolean guard compiled from an expr-lang
	// expression string (domain stack wiring, SPEC_FULL.md); a rule whose
	// condition evaluates false is treated as non-matching. Nil means
	// "always applies".
	Condition *vm.Program

	// insertionOrder breaks priority ties: rules are walked in descending
	// priority, and among equal priorities, in the order they were added.
	insertionOrder int
}
