package policy

import "github.com/lion-dev/lion/internal/domain/capabilities"

// EvaluationKind discriminates an EvaluationResult.
type EvaluationKind string

const (
	EvalAllow               EvaluationKind = "allow"
	EvalDeny                EvaluationKind = "deny"
	EvalAllowWithConstraint EvaluationKind = "allow_with_constraints"
	EvalNoPolicy            EvaluationKind = "no_policy"
)

// EvaluationResult is the outcome of resolving an AccessRequest against
// the policy store (spec.md §3 EvaluationResult).
type EvaluationResult struct {
	Kind        EvaluationKind
	Constraints []capabilities.Constraint // meaningful when Kind == EvalAllowWithConstraint
	MatchedRule string                    // id of the rule that produced this result, for audit logging
	Transform   bool                      // true if the matching action was TransformToConstraints
}

// Allow is a convenience constructor.
func Allow(ruleID string) EvaluationResult {
	return EvaluationResult{Kind: EvalAllow, MatchedRule: ruleID}
}

// Deny is a convenience constructor.
func Deny(ruleID string) EvaluationResult {
	return EvaluationResult{Kind: EvalDeny, MatchedRule: ruleID}
}

// NoPolicy is the result when no rule applies (or only Audit rules
// applied); the check engine maps this to Deny by default.
func NoPolicy() EvaluationResult {
	return EvaluationResult{Kind: EvalNoPolicy}
}
