package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan eventlog.SystemEvent) eventlog.SystemEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
		return eventlog.SystemEvent{}
	}
}

func TestOrchestrator_TaskSubmittedSynthesizesCompletion(t *testing.T) {
	log := eventlog.NewLog()
	o := New(log, Config{
		RunTask: func(_ context.Context, _ domain.TaskID, payload any) (any, error) {
			return payload, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)

	sub := o.Subscribe()
	taskID := domain.NewTaskID()
	require.NoError(t, o.Submit(ctx, eventlog.TaskSubmitted(taskID, "payload", eventlog.NewMetadata("corr-1", nil))))

	completion := waitFor(t, sub)
	assert.Equal(t, eventlog.EventTaskCompleted, completion.Kind)
	assert.Equal(t, domain.CorrelationID("corr-1"), completion.Meta.CorrelationID)

	cancel()
	<-o.Done()

	summary := log.ReplaySummary()
	assert.Equal(t, 1, summary.TaskCounts[eventlog.EventTaskSubmitted])
	assert.Equal(t, 1, summary.TaskCounts[eventlog.EventTaskCompleted])
}

func TestOrchestrator_TaskRunnerErrorProducesTaskError(t *testing.T) {
	log := eventlog.NewLog()
	o := New(log, Config{
		RunTask: func(_ context.Context, _ domain.TaskID, _ any) (any, error) {
			return nil, errors.New("boom")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)

	sub := o.Subscribe()
	require.NoError(t, o.Submit(ctx, eventlog.TaskSubmitted(domain.NewTaskID(), nil, eventlog.NewMetadata("", nil))))

	completion := waitFor(t, sub)
	assert.Equal(t, eventlog.EventTaskError, completion.Kind)
	assert.Equal(t, "boom", completion.Err)

	cancel()
	<-o.Done()
}

func TestOrchestrator_PluginInvokedEmitsResult(t *testing.T) {
	log := eventlog.NewLog()
	o := New(log, Config{
		Invoke: func(_ context.Context, _ domain.PluginID, input any) (any, error) {
			return input, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)

	sub := o.Subscribe()
	require.NoError(t, o.Submit(ctx, eventlog.PluginInvoked(domain.PluginID("P"), "hello", eventlog.NewMetadata("", nil))))

	// Plugin terminal events are broadcast, not just logged, the same as
	// task completions.
	completion := waitFor(t, sub)
	assert.Equal(t, eventlog.EventPluginResult, completion.Kind)

	require.Eventually(t, func() bool {
		return log.ReplaySummary().PluginCounts[eventlog.EventPluginResult] == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-o.Done()
}

// TestOrchestrator_AgentPartialOutputsAreLoggedButTerminalIsBroadcast
// verifies spec.md §4.E: every terminal variant (Task/Plugin/Agent) is
// broadcast, the sole exception being AgentPartialOutput, which is never
// terminal and is only ever logged.
func TestOrchestrator_AgentPartialOutputsAreLoggedButTerminalIsBroadcast(t *testing.T) {
	log := eventlog.NewLog()
	o := New(log, Config{
		Agent: func(_ context.Context, agentID, _ string) <-chan AgentStep {
			ch := make(chan AgentStep, 3)
			ch <- AgentStep{Partial: "chunk-1"}
			ch <- AgentStep{Partial: "chunk-2"}
			ch <- AgentStep{Done: true, Result: "final"}
			close(ch)
			return ch
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)

	sub := o.Subscribe()
	require.NoError(t, o.Submit(ctx, eventlog.AgentSpawned("agent-1", "do it", eventlog.NewMetadata("", nil))))

	// The agent's terminal completion IS broadcast to this observer.
	completion := waitFor(t, sub)
	assert.Equal(t, eventlog.EventAgentCompleted, completion.Kind)

	// No further broadcasts follow: the two partial chunks were only
	// logged, never pushed to the subscriber channel.
	select {
	case event := <-sub:
		t.Fatalf("unexpected broadcast event: %v", event.Kind)
	case <-time.After(100 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		summary := log.ReplaySummary()
		return summary.AgentCounts[eventlog.EventAgentPartialOutput] == 2 &&
			summary.TerminalStatus["agent-1"] == eventlog.EventAgentCompleted
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-o.Done()
}

func TestOrchestrator_SubmitBlocksUntilCancelledWhenMailboxFull(t *testing.T) {
	log := eventlog.NewLog()
	o := New(log, Config{QueueSize: 1})

	// No Run loop consuming: the mailbox fills after one Submit.
	ctx := context.Background()
	require.NoError(t, o.Submit(ctx, eventlog.TaskSubmitted(domain.NewTaskID(), nil, eventlog.NewMetadata("", nil))))

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := o.Submit(cancelCtx, eventlog.TaskSubmitted(domain.NewTaskID(), nil, eventlog.NewMetadata("", nil)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
