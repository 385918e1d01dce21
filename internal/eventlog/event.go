// Package eventlog implements the append-only event log and SystemEvent
// tagged sum of spec.md §3/§4.E.
package eventlog

import (
	"time"

	"github.com/lion-dev/lion/internal/domain"
)

// EventKind discriminates the payload carried by a SystemEvent.
type EventKind string

const (
	EventTaskSubmitted EventKind = "task_submitted"
	EventTaskCompleted EventKind = "task_completed"
	EventTaskError     EventKind = "task_error"

	EventPluginInvoked EventKind = "plugin_invoked"
	EventPluginResult  EventKind = "plugin_result"
	EventPluginError   EventKind = "plugin_error"

	EventAgentSpawned       EventKind = "agent_spawned"
	EventAgentPartialOutput EventKind = "agent_partial_output"
	EventAgentCompleted     EventKind = "agent_completed"
	EventAgentError         EventKind = "agent_error"
)

// Terminal reports whether an event kind ends the lifecycle of the task,
// plugin invocation, or agent run it belongs to (spec.md §4.E: "Terminal
// variants are never re-dispatched").
func (k EventKind) Terminal() bool {
	switch k {
	case EventTaskCompleted, EventTaskError,
		EventPluginResult, EventPluginError,
		EventAgentCompleted, EventAgentError:
		return true
	default:
		return false
	}
}

// Metadata accompanies every SystemEvent variant (spec.md §3 EventMetadata).
type Metadata struct {
	EventID       domain.EventID
	Timestamp     time.Time
	CorrelationID domain.CorrelationID // empty means unset
	Context       map[string]string
}

// SystemEvent is the tagged sum driving the orchestrator. Exactly one of
// the per-kind payload fields is meaningful, selected by Kind, following
// the same flat tagged-struct idiom as domain.AccessRequest.
type SystemEvent struct {
	Kind EventKind
	Meta Metadata

	// TaskSubmitted / TaskCompleted / TaskError
	TaskID  domain.TaskID
	Payload any
	Result  any
	Err     string

	// PluginInvoked / PluginResult / PluginError
	Plugin domain.PluginID
	Input  any

	// AgentSpawned / AgentPartialOutput / AgentCompleted / AgentError
	AgentID string
	Prompt  string
	Partial string
}

// NewMetadata builds event metadata with a fresh event ID and the current
// timestamp, propagating correlation unchanged (spec.md §4.E step 3).
func NewMetadata(correlation domain.CorrelationID, context map[string]string) Metadata {
	return Metadata{
		EventID:       domain.NewEventID(),
		Timestamp:     time.Now(),
		CorrelationID: correlation,
		Context:       context,
	}
}

// TaskSubmitted builds a TaskSubmitted event.
func TaskSubmitted(taskID domain.TaskID, payload any, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventTaskSubmitted, Meta: meta, TaskID: taskID, Payload: payload}
}

// TaskCompleted builds a TaskCompleted event derived from a submission,
// propagating correlation ID (spec.md §4.E step 3).
func TaskCompleted(taskID domain.TaskID, result any, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventTaskCompleted, Meta: meta, TaskID: taskID, Result: result}
}

// TaskFailed builds a TaskError event.
func TaskFailed(taskID domain.TaskID, errMsg string, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventTaskError, Meta: meta, TaskID: taskID, Err: errMsg}
}

// PluginInvoked builds a PluginInvoked event.
func PluginInvoked(plugin domain.PluginID, input any, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventPluginInvoked, Meta: meta, Plugin: plugin, Input: input}
}

// PluginResult builds a PluginResult event.
func PluginResult(plugin domain.PluginID, result any, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventPluginResult, Meta: meta, Plugin: plugin, Result: result}
}

// PluginFailed builds a PluginError event.
func PluginFailed(plugin domain.PluginID, errMsg string, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventPluginError, Meta: meta, Plugin: plugin, Err: errMsg}
}

// AgentSpawned builds an AgentSpawned event.
func AgentSpawned(agentID, prompt string, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventAgentSpawned, Meta: meta, AgentID: agentID, Prompt: prompt}
}

// AgentPartialOutput builds an AgentPartialOutput event; these are logged
// but never broadcast (spec.md §4.E step 2).
func AgentPartialOutput(agentID, partial string, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventAgentPartialOutput, Meta: meta, AgentID: agentID, Partial: partial}
}

// AgentCompleted builds an AgentCompleted event.
func AgentCompleted(agentID string, result any, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventAgentCompleted, Meta: meta, AgentID: agentID, Result: result}
}

// AgentFailed builds an AgentError event.
func AgentFailed(agentID, errMsg string, meta Metadata) SystemEvent {
	return SystemEvent{Kind: EventAgentError, Meta: meta, AgentID: agentID, Err: errMsg}
}
