package capabilities

import "fmt"

// PermissionDeniedError reports that a capability's scope or operation
// bits do not cover a requested access.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

func denied(format string, args ...any) error {
	return &PermissionDeniedError{Reason: fmt.Sprintf(format, args...)}
}

// ConstraintError reports that a constraint could not be applied to a
// capability, e.g. because it names a variant the constraint doesn't
// understand.
type ConstraintError struct {
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint error: %s", e.Reason)
}

func constraintErr(format string, args ...any) error {
	return &ConstraintError{Reason: fmt.Sprintf(format, args...)}
}

// CompositionError reports that two capabilities could not be joined,
// typically because they are of different variants.
type CompositionError struct {
	Reason string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition error: %s", e.Reason)
}

func compositionErr(format string, args ...any) error {
	return &CompositionError{Reason: fmt.Sprintf(format, args...)}
}
