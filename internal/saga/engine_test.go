package saga

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lion-dev/lion/internal/capstore"
	"github.com/lion-dev/lion/internal/check"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
	"github.com/lion-dev/lion/internal/domain/policy"
	"github.com/stretchr/testify/require"
)

// recordingInvoker is a fake Invoker that records every call and can be
// configured to fail specific actions, used for both forward steps and
// compensation actions.
type recordingInvoker struct {
	mu         sync.Mutex
	calls      []string
	failAlways map[string]bool
	delay      time.Duration
	delayOnly  string
}

func newRecordingInvoker() *recordingInvoker {
	return &recordingInvoker{failAlways: map[string]bool{}}
}

// newSelectiveDelayInvoker delays only the named action; every other
// action returns immediately.
func newSelectiveDelayInvoker(delay time.Duration, delayedAction string) *recordingInvoker {
	r := newRecordingInvoker()
	r.delayOnly = delayedAction
	r.delay = delay
	return r
}

func (r *recordingInvoker) Invoke(ctx context.Context, plugin domain.PluginID, function string, input any) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, function)
	fail := r.failAlways[function]
	delay := r.delay
	if r.delayOnly != "" && r.delayOnly != function {
		delay = 0
	}
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("simulated failure for %s", function)
	}
	return map[string]any{"from": function}, nil
}

func (r *recordingInvoker) callCount(function string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == function {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, invoker Invoker) *Engine {
	t.Helper()
	rules := policy.NewStore()
	rules.Add(policy.Rule{ID: "allow-all", Subject: policy.AnySubject(), Object: policy.AnyObject(), Action: policy.Action{Kind: policy.ActionAllow}})
	resolver := policy.NewResolver(rules, nil)
	caps := capstore.NewStore()
	checker := check.NewEngine(resolver, caps, nil)
	caps.Add(domain.PluginID("inventory"), &capabilities.PluginCallCap{})
	caps.Add(domain.PluginID("payment"), &capabilities.PluginCallCap{})
	return New(checker, invoker, Config{Workers: 2, CheckInterval: 10 * time.Millisecond})
}

func waitForOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case outcome := <-ch:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for saga outcome")
		return Outcome{}
	}
}

func TestEngine_LinearSagaCompletes(t *testing.T) {
	invoker := newRecordingInvoker()
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve"},
		{ID: "step2", Service: "payment", Action: "process", DependsOn: []domain.StepID{"step1"}},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusCompleted, outcome.Status)
	require.Contains(t, outcome.Results, domain.StepID("step2"))
}

// TestEngine_StepFailureTriggersCompensation is the end-to-end scenario
// from spec.md §8: step1 (inventory/reserve) succeeds, step2
// (payment/process) fails and triggers compensation, and step1's
// compensation is invoked.
func TestEngine_StepFailureTriggersCompensation(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.failAlways["process"] = true
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve", Compensation: "release", TriggersCompensation: true},
		{ID: "step2", Service: "payment", Action: "process", DependsOn: []domain.StepID{"step1"}, TriggersCompensation: true},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusCompensated, outcome.Status)
	require.Equal(t, 1, invoker.callCount("release"))
}

func TestEngine_CompensationFailureYieldsFailedWithErrors(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.failAlways["process"] = true
	invoker.failAlways["release"] = true
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve", Compensation: "release", TriggersCompensation: true},
		{ID: "step2", Service: "payment", Action: "process", DependsOn: []domain.StepID{"step1"}, TriggersCompensation: true},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusFailedWithErrs, outcome.Status)
}

func TestEngine_ContinueOnFailureSkipsDescendantsButFinishesOthers(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.failAlways["reserve"] = true
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve", ContinueOnFailure: true},
		{ID: "step2", Service: "payment", Action: "process", DependsOn: []domain.StepID{"step1"}},
		{ID: "step3", Service: "payment", Action: "notify"},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusCompleted, outcome.Status)
	require.NotContains(t, outcome.Results, domain.StepID("step2"))
	require.Contains(t, outcome.Results, domain.StepID("step3"))
}

func TestEngine_FailureWithoutCompensationOrContinueFailsSaga(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.failAlways["reserve"] = true
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve"},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
}

func TestEngine_AbortRunningSagaCompensatesCompletedSteps(t *testing.T) {
	invoker := newSelectiveDelayInvoker(200 * time.Millisecond, "process")
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve", Compensation: "release"},
		{ID: "step2", Service: "payment", Action: "process", DependsOn: []domain.StepID{"step1"}, Compensation: "refund"},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	// step1 (no delay) completes almost immediately; step2 (delayed) is
	// still in flight when the abort arrives, so only step1's
	// compensation should be invoked.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, engine.Abort(ctx, sagaID, "user requested cancellation"))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusAborted, outcome.Status)
	require.Equal(t, 1, invoker.callCount("release"))
	require.Equal(t, 0, invoker.callCount("refund"))
}

func TestEngine_AbortOnTerminalSagaIsNoOp(t *testing.T) {
	invoker := newRecordingInvoker()
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve"},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))
	waitForOutcome(t, outcomes)

	// Abort after the saga has already completed is a no-op: the engine
	// silently ignores it rather than erroring, since completion races
	// with any external abort call are expected.
	require.NoError(t, engine.Abort(ctx, sagaID, "too late"))
}

func TestEngine_SagaTimeoutAbortsAndCompensates(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.delay = 200 * time.Millisecond
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", TimeoutSecs: 0.02, Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve", Compensation: "release"},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	outcome := waitForOutcome(t, outcomes)
	require.Equal(t, StatusAborted, outcome.Status)
}

func TestEngine_StatusReportsRunningThenTerminal(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.delay = 50 * time.Millisecond
	engine := newTestEngine(t, invoker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	outcomes := engine.Subscribe()
	def := &Definition{Name: "order", Steps: []Step{
		{ID: "step1", Service: "inventory", Action: "reserve"},
	}}

	sagaID, err := engine.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, sagaID))

	snap, err := engine.Status(ctx, sagaID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, snap.Status)

	waitForOutcome(t, outcomes)
}
