package eventlog

import (
	"testing"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestLog_AppendAndAllPreservesOrder(t *testing.T) {
	log := NewLog()
	taskID := domain.NewTaskID()

	log.Append(TaskSubmitted(taskID, "payload", NewMetadata("", nil)))
	log.Append(TaskCompleted(taskID, "result", NewMetadata("", nil)))

	records := log.All()
	assert.Len(t, records, 2)
	assert.Equal(t, EventTaskSubmitted, records[0].Event.Kind)
	assert.Equal(t, EventTaskCompleted, records[1].Event.Kind)
}

func TestLog_AllReturnsSnapshotNotLiveView(t *testing.T) {
	log := NewLog()
	log.Append(TaskSubmitted(domain.NewTaskID(), nil, NewMetadata("", nil)))

	snapshot := log.All()
	log.Append(TaskSubmitted(domain.NewTaskID(), nil, NewMetadata("", nil)))

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, log.Len())
}

func TestLog_ReplaySummaryAggregatesTerminalStatus(t *testing.T) {
	log := NewLog()
	taskA := domain.NewTaskID()
	taskB := domain.NewTaskID()

	log.Append(TaskSubmitted(taskA, nil, NewMetadata("", nil)))
	log.Append(TaskSubmitted(taskB, nil, NewMetadata("", nil)))
	log.Append(TaskCompleted(taskA, "ok", NewMetadata("", nil)))
	log.Append(TaskFailed(taskB, "boom", NewMetadata("", nil)))

	summary := log.ReplaySummary()
	assert.Equal(t, 2, summary.TaskCounts[EventTaskSubmitted])
	assert.Equal(t, 1, summary.TaskCounts[EventTaskCompleted])
	assert.Equal(t, 1, summary.TaskCounts[EventTaskError])
	assert.Equal(t, EventTaskCompleted, summary.TerminalStatus[string(taskA)])
	assert.Equal(t, EventTaskError, summary.TerminalStatus[string(taskB)])
}

func TestLog_ReplaySummaryIgnoresPartialAgentOutputAsTerminal(t *testing.T) {
	log := NewLog()
	agentID := "agent-1"

	log.Append(AgentSpawned(agentID, "do a thing", NewMetadata("", nil)))
	log.Append(AgentPartialOutput(agentID, "chunk one", NewMetadata("", nil)))
	log.Append(AgentPartialOutput(agentID, "chunk two", NewMetadata("", nil)))

	summary := log.ReplaySummary()
	_, hasTerminal := summary.TerminalStatus[agentID]
	assert.False(t, hasTerminal)
	assert.Equal(t, 2, summary.AgentCounts[EventAgentPartialOutput])

	log.Append(AgentCompleted(agentID, "done", NewMetadata("", nil)))
	summary = log.ReplaySummary()
	assert.Equal(t, EventAgentCompleted, summary.TerminalStatus[agentID])
}
