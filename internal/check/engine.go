// Package check implements the single mediation point of spec.md §4.D:
// every access a plugin makes is routed through Engine.Check, which
// consults the policy resolver and the plugin's own capability inventory
// before permitting anything.
package check

import (
	"log/slog"

	"github.com/lion-dev/lion/internal/capstore"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
	"github.com/lion-dev/lion/internal/domain/policy"
	"github.com/lion-dev/lion/internal/lionerr"
)

// Engine is the capability-check mediation point. Grounded on the
// resolve-then-enumerate-then-synthesize flow of lion_policy's
// integration layer, adapted to call through the capstore.Store built in
// §4.C instead of a Rust Arc<RwLock<...>>.
type Engine struct {
	resolver *policy.Resolver
	caps     *capstore.Store
	log      *slog.Logger
}

// NewEngine builds a check Engine. log may be nil, in which case
// slog.Default() is used.
func NewEngine(resolver *policy.Resolver, caps *capstore.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{resolver: resolver, caps: caps, log: log}
}

// Check implements spec.md §4.D steps 1-5. A nil error means the request
// is permitted; a non-nil error is always a *lionerr.CapabilityError.
// Its Kind is CapPermissionDenied when policy refuses the request (the
// engine does not expose a separate "PolicyDenied" type, folding it into
// CapPermissionDenied), or CapNoCapability when policy allows the request
// but no held or synthesized capability permits it.
func (e *Engine) Check(plugin domain.PluginID, request domain.AccessRequest) error {
	result, err := e.resolver.Evaluate(plugin, request)
	if err != nil {
		e.deny(plugin, request, "policy evaluation failed", err)
		return lionerr.NewCapabilityError(lionerr.CapPermissionDenied, "policy evaluation failed", err)
	}

	switch result.Kind {
	case policy.EvalDeny, policy.EvalNoPolicy:
		e.deny(plugin, request, "denied by policy", nil)
		return lionerr.NewCapabilityError(lionerr.CapPermissionDenied, "denied by policy", nil)

	case policy.EvalAllow:
		if e.permitsAny(plugin, request) {
			return nil
		}
		e.deny(plugin, request, "policy allows but plugin holds no matching capability", nil)
		return lionerr.NewCapabilityError(lionerr.CapNoCapability, "no capability grants this request", nil)

	case policy.EvalAllowWithConstraint:
		if e.permitsAny(plugin, request) {
			return nil
		}
		synthetic := capabilities.SynthesizeFromConstraints(request.Kind, result.Constraints)
		if synthetic != nil && synthetic.Permits(request) == nil {
			e.log.Info("check: permitted via synthesized transient capability",
				"plugin", plugin, "rule", result.MatchedRule, "transform", result.Transform)
			return nil
		}
		e.deny(plugin, request, "no capability, and synthesized transient capability does not permit", nil)
		return lionerr.NewCapabilityError(lionerr.CapNoCapability, "no capability grants this request", nil)

	default:
		e.deny(plugin, request, "unrecognized evaluation result", nil)
		return lionerr.NewCapabilityError(lionerr.CapPermissionDenied, "unrecognized evaluation result", nil)
	}
}

// permitsAny reports whether any capability currently held by plugin
// permits request (spec.md §4.D step 3).
func (e *Engine) permitsAny(plugin domain.PluginID, request domain.AccessRequest) bool {
	for _, cap := range e.caps.List(plugin) {
		if cap.Permits(request) == nil {
			return true
		}
	}
	return false
}

func (e *Engine) deny(plugin domain.PluginID, request domain.AccessRequest, reason string, cause error) {
	e.log.Warn("check: access denied",
		"plugin", plugin,
		"request_kind", request.Kind,
		"reason", reason,
		"error", cause,
	)
}
