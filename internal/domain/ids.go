// Package domain defines the core value types shared across every Lion
// subsystem: opaque identifiers and the tagged-union access request that
// flows from a plugin through the check engine.
package domain

import "github.com/google/uuid"

// PluginID uniquely identifies a loaded plugin for the lifetime of the
// runtime process.
type PluginID string

// NewPluginID generates a fresh, universally unique plugin identifier.
func NewPluginID() PluginID {
	return PluginID(uuid.NewString())
}

// CapabilityID uniquely identifies a capability within a plugin's
// inventory in the capability store.
type CapabilityID string

// NewCapabilityID generates a fresh, universally unique capability
// identifier.
func NewCapabilityID() CapabilityID {
	return CapabilityID(uuid.NewString())
}

// WorkflowID uniquely identifies a workflow definition.
type WorkflowID string

// NewWorkflowID generates a fresh, universally unique workflow identifier.
func NewWorkflowID() WorkflowID {
	return WorkflowID(uuid.NewString())
}

// NodeID uniquely identifies a node within a workflow's graph.
type NodeID string

// TaskID uniquely identifies a scheduled execution of one node within one
// workflow instance.
type TaskID string

// NewTaskID generates a fresh, universally unique task identifier.
func NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// InstanceID uniquely identifies a running instance of a workflow.
type InstanceID string

// NewInstanceID generates a fresh, universally unique workflow instance
// identifier.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// SagaID uniquely identifies a saga instance.
type SagaID string

// NewSagaID generates a fresh, universally unique saga identifier.
func NewSagaID() SagaID {
	return SagaID(uuid.NewString())
}

// StepID uniquely identifies a step within a saga definition.
type StepID string

// EventID uniquely identifies a single system event.
type EventID string

// NewEventID generates a fresh, universally unique event identifier.
func NewEventID() EventID {
	return EventID(uuid.NewString())
}

// CorrelationID links causally related events across derived dispatches.
// The empty string means "no correlation set".
type CorrelationID string
