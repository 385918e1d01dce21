// Package capabilities implements the capability algebra of spec.md §3/§4.A:
// typed, polymorphic rights with subsumption, attenuation, split and join.
// Each variant (File, Network, PluginCall, Memory, Message) is a tagged-sum
// arm implementing the same four operations via pattern matching rather
// than dynamic dispatch, per the design notes in spec.md §9.
package capabilities

import "github.com/lion-dev/lion/internal/domain"

// Variant names the capability's kind. A Capability only ever permits
// requests of the matching domain.RequestKind.
type Variant string

const (
	VariantFile       Variant = "file"
	VariantNetwork    Variant = "network"
	VariantPluginCall Variant = "plugin_call"
	VariantMemory     Variant = "memory"
	VariantMessage    Variant = "message"
)

// Capability is an unforgeable, typed right to perform a bounded set of
// operations on a bounded set of targets. Every variant implements all
// four operations; cross-variant Join/Constrain attempts return
// CompositionError/ConstraintError rather than panicking.
type Capability interface {
	// Variant reports which tagged-sum arm this capability belongs to.
	Variant() Variant

	// Permits reports whether every attribute of request lies within the
	// capability's scope and the requested operation bits are a subset of
	// the capability's operation bits. Total function: never panics.
	Permits(request domain.AccessRequest) error

	// Constrain monotonically narrows the capability: permission bits may
	// only be cleared and scopes may only be intersected. The returned
	// capability permits a subset of what the receiver permits.
	Constrain(constraints []Constraint) (Capability, error)

	// Split decomposes the capability into operation-disjoint children
	// whose union is permission-equivalent to the receiver.
	Split() []Capability

	// Join requires both capabilities be the same variant; the result's
	// permission bits are the bitwise OR and its scopes the set union.
	Join(other Capability) (Capability, error)

	// Includes reports whether the receiver subsumes other: every request
	// other permits, the receiver also permits. This is the capability
	// lattice's ordering relation (spec.md §4.A).
	Includes(other Capability) bool
}

// includesBySampling checks subsumption directly: A includes B iff A
// permits every one of B's permitted requests. Because
// we can't enumerate "every request" for an infinite scope, each variant
// provides its own Includes by direct scope/op comparison; this helper is
// used by tests to cross-check that property against sampled requests.
func includesBySampling(a, b Capability, samples []domain.AccessRequest) bool {
	for _, r := range samples {
		if b.Permits(r) == nil && a.Permits(r) != nil {
			return false
		}
	}
	return true
}
