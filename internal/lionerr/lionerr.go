// Package lionerr defines the cross-cutting error taxonomy of spec.md §7:
// one struct type per component, each carrying a Kind discriminator so
// callers can branch on category without type-switching on every variant.
// Grounded on reglet's internal/application/errors package.
package lionerr

import "fmt"

// CapabilityErrorKind discriminates a CapabilityError.
type CapabilityErrorKind string

const (
	CapPermissionDenied CapabilityErrorKind = "permission_denied"
	CapNoCapability     CapabilityErrorKind = "no_capability"
	CapConstraintError  CapabilityErrorKind = "constraint_error"
	CapCompositionError CapabilityErrorKind = "composition_error"
)

// CapabilityError reports a failure within the capability algebra or
// capability store.
type CapabilityError struct {
	Kind   CapabilityErrorKind
	Reason string
	Cause  error
}

func (e *CapabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capability error (%s): %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("capability error (%s): %s", e.Kind, e.Reason)
}

func (e *CapabilityError) Unwrap() error { return e.Cause }

// NewCapabilityError constructs a CapabilityError.
func NewCapabilityError(kind CapabilityErrorKind, reason string, cause error) *CapabilityError {
	return &CapabilityError{Kind: kind, Reason: reason, Cause: cause}
}

// PolicyErrorKind discriminates a PolicyError.
type PolicyErrorKind string

const (
	PolicyNoMatchingRule PolicyErrorKind = "no_matching_rule"
	PolicyParseError     PolicyErrorKind = "parse_error"
)

// PolicyError reports a failure resolving or parsing a policy rule.
// NoMatchingRule is not itself a failure mode of Evaluate (no_policy maps
// to secure-default-deny at the check engine) but is raised when a caller
// requires at least one rule to have matched, e.g. administrative tooling
// validating a policy set.
type PolicyError struct {
	Kind   PolicyErrorKind
	Reason string
	Cause  error
}

func (e *PolicyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy error (%s): %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("policy error (%s): %s", e.Kind, e.Reason)
}

func (e *PolicyError) Unwrap() error { return e.Cause }

// NewPolicyError constructs a PolicyError.
func NewPolicyError(kind PolicyErrorKind, reason string, cause error) *PolicyError {
	return &PolicyError{Kind: kind, Reason: reason, Cause: cause}
}

// PluginErrorKind discriminates a PluginError.
type PluginErrorKind string

const (
	PluginNotFound         PluginErrorKind = "not_found"
	PluginLoadError        PluginErrorKind = "load_error"
	PluginInvalidManifest  PluginErrorKind = "invalid_manifest"
	PluginInvokeError      PluginErrorKind = "invoke_error"
	PluginProcessError     PluginErrorKind = "process_error"
	PluginResourceExhausted PluginErrorKind = "resource_exhausted"
	PluginWrongState       PluginErrorKind = "wrong_state"
)

// PluginError reports a failure in the plugin lifecycle manager.
type PluginError struct {
	Kind   PluginErrorKind
	Plugin string
	Reason string
	Cause  error
}

func (e *PluginError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("plugin error (%s) for %s: %s: %v", e.Kind, e.Plugin, e.Reason, e.Cause)
	}
	return fmt.Sprintf("plugin error (%s) for %s: %s", e.Kind, e.Plugin, e.Reason)
}

func (e *PluginError) Unwrap() error { return e.Cause }

// NewPluginError constructs a PluginError.
func NewPluginError(kind PluginErrorKind, plugin, reason string, cause error) *PluginError {
	return &PluginError{Kind: kind, Plugin: plugin, Reason: reason, Cause: cause}
}

// MessageErrorKind discriminates a MessageError.
type MessageErrorKind string

const (
	MessageNoSuchPlugin     MessageErrorKind = "no_such_plugin"
	MessageNoSuchTopic      MessageErrorKind = "no_such_topic"
	MessageBusFull          MessageErrorKind = "bus_full"
	MessageFormatError      MessageErrorKind = "format_error"
	MessagePermissionDenied MessageErrorKind = "permission_denied"
)

// MessageError reports a failure delivering a message on the bus.
type MessageError struct {
	Kind   MessageErrorKind
	Reason string
	Cause  error
}

func (e *MessageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("message error (%s): %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("message error (%s): %s", e.Kind, e.Reason)
}

func (e *MessageError) Unwrap() error { return e.Cause }

// NewMessageError constructs a MessageError.
func NewMessageError(kind MessageErrorKind, reason string, cause error) *MessageError {
	return &MessageError{Kind: kind, Reason: reason, Cause: cause}
}

// WorkflowErrorKind discriminates a WorkflowError.
type WorkflowErrorKind string

const (
	WorkflowNodeNotFound      WorkflowErrorKind = "node_not_found"
	WorkflowCyclicDependency  WorkflowErrorKind = "cyclic_dependency"
	WorkflowTimeout           WorkflowErrorKind = "timeout"
	WorkflowExecutionFailed   WorkflowErrorKind = "execution_failed"
	WorkflowCancelled         WorkflowErrorKind = "cancelled"
)

// WorkflowError reports a failure in the workflow scheduler or executor.
type WorkflowError struct {
	Kind     WorkflowErrorKind
	Workflow string
	Node     string
	Reason   string
	Cause    error
}

func (e *WorkflowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workflow error (%s) in %s/%s: %s: %v", e.Kind, e.Workflow, e.Node, e.Reason, e.Cause)
	}
	return fmt.Sprintf("workflow error (%s) in %s/%s: %s", e.Kind, e.Workflow, e.Node, e.Reason)
}

func (e *WorkflowError) Unwrap() error { return e.Cause }

// NewWorkflowError constructs a WorkflowError.
func NewWorkflowError(kind WorkflowErrorKind, workflow, node, reason string, cause error) *WorkflowError {
	return &WorkflowError{Kind: kind, Workflow: workflow, Node: node, Reason: reason, Cause: cause}
}

// SagaErrorKind discriminates a SagaError.
type SagaErrorKind string

const (
	SagaStepFailed         SagaErrorKind = "step_failed"
	SagaCompensationFailed SagaErrorKind = "compensation_failed"
	SagaAborted            SagaErrorKind = "aborted"
	SagaTimeout            SagaErrorKind = "timeout"
)

// SagaError reports a failure in the saga coordinator.
type SagaError struct {
	Kind   SagaErrorKind
	Saga   string
	Step   string
	Reason string
	Cause  error
}

func (e *SagaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("saga error (%s) in %s/%s: %s: %v", e.Kind, e.Saga, e.Step, e.Reason, e.Cause)
	}
	return fmt.Sprintf("saga error (%s) in %s/%s: %s", e.Kind, e.Saga, e.Step, e.Reason)
}

func (e *SagaError) Unwrap() error { return e.Cause }

// NewSagaError constructs a SagaError.
func NewSagaError(kind SagaErrorKind, saga, step, reason string, cause error) *SagaError {
	return &SagaError{Kind: kind, Saga: saga, Step: step, Reason: reason, Cause: cause}
}

// CheckpointErrorKind discriminates a CheckpointError.
type CheckpointErrorKind string

const (
	CheckpointNotFound              CheckpointErrorKind = "not_found"
	CheckpointValidationFailed      CheckpointErrorKind = "validation_failed"
	CheckpointSchemaVersionMismatch CheckpointErrorKind = "schema_version_mismatch"
	CheckpointInProgress            CheckpointErrorKind = "checkpoint_in_progress"
	CheckpointStorageError          CheckpointErrorKind = "storage_error"
)

// CheckpointError reports a failure saving, loading, or pruning a
// workflow checkpoint.
type CheckpointError struct {
	Kind   CheckpointErrorKind
	Reason string
	Cause  error
}

func (e *CheckpointError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("checkpoint error (%s): %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("checkpoint error (%s): %s", e.Kind, e.Reason)
}

func (e *CheckpointError) Unwrap() error { return e.Cause }

// NewCheckpointError constructs a CheckpointError.
func NewCheckpointError(kind CheckpointErrorKind, reason string, cause error) *CheckpointError {
	return &CheckpointError{Kind: kind, Reason: reason, Cause: cause}
}
