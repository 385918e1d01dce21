package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lion-dev/lion/internal/check"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/lionerr"
	"golang.org/x/sync/errgroup"
)

// NodeStatus is one node's position in spec.md §4.H's execution state
// machine.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeReady     NodeStatus = "ready"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// Status is a workflow instance's overall state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const defaultNodeTimeoutSecs = 30

// Invoker executes one plugin function, forwarding to the plugin
// lifecycle manager's invoke() path. internal/lifecycle.Registry
// satisfies this interface.
type Invoker interface {
	Invoke(ctx context.Context, plugin domain.PluginID, functionName string, input any) (any, error)
}

// Outcome is published (spec.md §4.H step 3 "publish results") when a
// workflow instance reaches a terminal status.
type Outcome struct {
	Instance domain.InstanceID
	Workflow domain.WorkflowID
	Status   Status
	// Results holds the outputs of terminal nodes (nodes with no
	// outgoing edges), keyed by node ID.
	Results map[domain.NodeID]any
	Err     error
}

// Snapshot is a point-in-time read of one workflow instance, returned by
// Status().
type Snapshot struct {
	Status     Status
	NodeStatus map[domain.NodeID]NodeStatus
	Outputs    map[domain.NodeID]any
	Err        error
}

type msgKind int

const (
	msgStart msgKind = iota
	msgPause
	msgResume
	msgCancel
	msgNodeCompleted
	msgNodeFailed
	msgRetryReady
	msgQueryStatus
)

type controlMsg struct {
	kind     msgKind
	instance domain.InstanceID
	workflow *Workflow
	def      *Definition
	input    any
	node     domain.NodeID
	output   any
	err      error
	reply    chan Snapshot
}

type instanceState struct {
	def           *Definition
	workflow      domain.WorkflowID
	status        Status
	node          map[domain.NodeID]NodeStatus
	inDegree      map[domain.NodeID]int
	outputs       map[domain.NodeID]any
	inputs        map[domain.NodeID]any
	attempts      map[domain.NodeID]int
	workflowInput any
	err           error
	cancel        context.CancelFunc
	ctx           context.Context
}

// Engine is the actor-driven workflow scheduler and executor of
// spec.md §4.H. A single coordinator goroutine owns all per-instance
// state; a fixed-size worker pool (grounded on the teacher's
// dependency-aware worker pool) executes ready nodes concurrently and
// reports back through the same mailbox.
type Engine struct {
	checker *check.Engine
	invoker Invoker
	logger  *slog.Logger
	workers int

	mailbox  chan controlMsg
	workChan chan dispatchItem
	queue    *readyQueue

	// instances is owned exclusively by the coordinator goroutine; every
	// external access goes through the mailbox, so no lock guards it.
	instances map[domain.InstanceID]*instanceState

	subMu       sync.Mutex
	subscribers []chan Outcome
}

// Config configures an Engine.
type Config struct {
	Workers   int
	QueueSize int
	Logger    *slog.Logger
}

// New builds an Engine. checker gates every node invocation; invoker
// performs it (a *lifecycle.Registry in production).
func New(checker *check.Engine, invoker Invoker, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		checker:   checker,
		invoker:   invoker,
		logger:    logger,
		workers:   cfg.Workers,
		mailbox:   make(chan controlMsg, cfg.QueueSize),
		workChan:  make(chan dispatchItem, cfg.Workers),
		queue:     newReadyQueue(),
		instances: make(map[domain.InstanceID]*instanceState),
	}
}

// Subscribe returns a channel that receives an Outcome whenever a
// workflow instance reaches a terminal status. Slow or absent
// subscribers miss events rather than blocking the engine.
func (e *Engine) Subscribe() <-chan Outcome {
	ch := make(chan Outcome, 16)
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMu.Unlock()
	return ch
}

func (e *Engine) publish(outcome Outcome) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- outcome:
		default:
			e.logger.Warn("workflow: dropped outcome, subscriber queue full", "instance", outcome.Instance)
		}
	}
}

// Run drives the coordinator and worker pool until ctx is cancelled. It
// returns once every worker has exited.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			e.runWorker(gctx)
			return nil
		})
	}
	g.Go(func() error {
		e.runCoordinator(gctx)
		return nil
	})
	return g.Wait()
}

func (e *Engine) runCoordinator(ctx context.Context) {
	defer close(e.workChan)
	for {
		select {
		case msg := <-e.mailbox:
			e.handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) runWorker(ctx context.Context) {
	for {
		select {
		case item, ok := <-e.workChan:
			if !ok {
				return
			}
			e.execute(ctx, item)
		case <-ctx.Done():
			return
		}
	}
}

// Start implements spec.md §4.H's Start(instance, input) mailbox
// message: validate the workflow's DAG, seed the execution state, and
// dispatch every zero-in-degree node.
func (e *Engine) Start(ctx context.Context, wf *Workflow, input any) (domain.InstanceID, error) {
	def, err := Build(wf.Nodes)
	if err != nil {
		return "", lionerr.NewWorkflowError(lionerr.WorkflowCyclicDependency, string(wf.ID), "", "workflow validation failed", err)
	}
	instanceID := domain.NewInstanceID()
	msg := controlMsg{kind: msgStart, instance: instanceID, workflow: wf, def: def, input: input}
	select {
	case e.mailbox <- msg:
		return instanceID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pause implements On Pause: toggle status, halting new dispatch.
func (e *Engine) Pause(ctx context.Context, instance domain.InstanceID) error {
	return e.send(ctx, controlMsg{kind: msgPause, instance: instance})
}

// Resume implements On Resume: toggle status and re-dispatch any node
// that became ready while paused.
func (e *Engine) Resume(ctx context.Context, instance domain.InstanceID) error {
	return e.send(ctx, controlMsg{kind: msgResume, instance: instance})
}

// Cancel implements On Cancel: mark the instance Cancelled, cooperatively
// cancel in-flight node contexts, and discard queued work.
func (e *Engine) Cancel(ctx context.Context, instance domain.InstanceID) error {
	return e.send(ctx, controlMsg{kind: msgCancel, instance: instance})
}

func (e *Engine) send(ctx context.Context, msg controlMsg) error {
	select {
	case e.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of one workflow instance's execution state.
func (e *Engine) Status(ctx context.Context, instance domain.InstanceID) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	msg := controlMsg{kind: msgQueryStatus, instance: instance, reply: reply}
	select {
	case e.mailbox <- msg:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (e *Engine) handle(ctx context.Context, msg controlMsg) {
	switch msg.kind {
	case msgStart:
		e.handleStart(ctx, msg)
	case msgPause:
		e.handlePause(msg)
	case msgResume:
		e.handleResume(msg)
	case msgCancel:
		e.handleCancel(msg)
	case msgNodeCompleted:
		e.handleNodeCompleted(ctx, msg)
	case msgNodeFailed:
		e.handleNodeFailed(ctx, msg)
	case msgRetryReady:
		e.handleRetryReady(msg)
	case msgQueryStatus:
		e.handleQueryStatus(msg)
	}
}

func (e *Engine) handleStart(ctx context.Context, msg controlMsg) {
	instCtx, cancel := context.WithCancel(context.Background())
	inst := &instanceState{
		def:           msg.def,
		workflow:      msg.workflow.ID,
		status:        StatusRunning,
		node:          make(map[domain.NodeID]NodeStatus, len(msg.def.order)),
		inDegree:      make(map[domain.NodeID]int, len(msg.def.order)),
		outputs:       make(map[domain.NodeID]any),
		inputs:        make(map[domain.NodeID]any),
		attempts:      make(map[domain.NodeID]int),
		workflowInput: msg.input,
		cancel:        cancel,
		ctx:           instCtx,
	}
	for _, id := range msg.def.order {
		inst.node[id] = NodePending
		inst.inDegree[id] = msg.def.initialInDegree(id)
	}

	e.instances[msg.instance] = inst

	for _, id := range msg.def.order {
		if inst.inDegree[id] == 0 {
			node := msg.def.nodeByID[id]
			input := inst.workflowInput
			inst.inputs[id] = input
			inst.node[id] = NodeReady
			e.tryDispatch(msg.instance, inst, node, input)
		}
	}
}

func (e *Engine) handlePause(msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok || inst.status != StatusRunning {
		return
	}
	inst.status = StatusPaused
}

func (e *Engine) handleResume(msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok || inst.status != StatusPaused {
		return
	}
	inst.status = StatusRunning
	for id, status := range inst.node {
		if status == NodeReady {
			node := inst.def.nodeByID[id]
			e.tryDispatch(msg.instance, inst, node, inst.inputs[id])
		}
	}
}

func (e *Engine) handleCancel(msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok || isTerminalStatus(inst.status) {
		return
	}
	inst.status = StatusCancelled
	inst.cancel()
	e.queue.discard(msg.instance)
	e.finalize(msg.instance, inst)
}

func (e *Engine) handleNodeCompleted(ctx context.Context, msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok || isTerminalStatus(inst.status) {
		return
	}
	inst.node[msg.node] = NodeCompleted
	inst.outputs[msg.node] = msg.output

	for _, successor := range inst.def.dependents[msg.node] {
		if inst.node[successor] != NodePending {
			continue
		}
		inst.inDegree[successor]--
		if inst.inDegree[successor] == 0 {
			node := inst.def.nodeByID[successor]
			input := mergeInputs(inst.workflowInput, dependencyOutputsInOrder(node, inst.outputs))
			inst.inputs[successor] = input
			inst.node[successor] = NodeReady
			e.tryDispatch(msg.instance, inst, node, input)
		}
	}

	e.maybeFinalize(msg.instance, inst)
}

func (e *Engine) handleNodeFailed(ctx context.Context, msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok || isTerminalStatus(inst.status) {
		return
	}
	node := inst.def.nodeByID[msg.node]

	attempt := inst.attempts[msg.node]
	if node.Retry != nil && attempt < node.Retry.MaxAttempts {
		inst.attempts[msg.node] = attempt + 1
		delay := calculateBackoff(node.Retry, attempt)
		e.scheduleRetry(ctx, inst, msg.instance, node, delay)
		return
	}

	inst.node[msg.node] = NodeFailed
	if node.ErrorPolicy == ErrorPolicyContinue {
		e.skipDescendants(inst, msg.node)
		e.maybeFinalize(msg.instance, inst)
		return
	}

	inst.status = StatusFailed
	inst.err = msg.err
	inst.cancel()
	e.queue.discard(msg.instance)
	e.finalize(msg.instance, inst)
}

func (e *Engine) handleRetryReady(msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok || isTerminalStatus(inst.status) {
		return
	}
	node := inst.def.nodeByID[msg.node]
	e.tryDispatch(msg.instance, inst, node, inst.inputs[msg.node])
}

func (e *Engine) handleQueryStatus(msg controlMsg) {
	inst, ok := e.instances[msg.instance]
	if !ok {
		msg.reply <- Snapshot{}
		return
	}
	snap := Snapshot{
		Status:     inst.status,
		NodeStatus: make(map[domain.NodeID]NodeStatus, len(inst.node)),
		Outputs:    make(map[domain.NodeID]any, len(inst.outputs)),
		Err:        inst.err,
	}
	for k, v := range inst.node {
		snap.NodeStatus[k] = v
	}
	for k, v := range inst.outputs {
		snap.Outputs[k] = v
	}
	msg.reply <- snap
}

// tryDispatch enqueues a ready node for execution unless the instance is
// paused, in which case it stays Ready until Resume re-examines it.
func (e *Engine) tryDispatch(instanceID domain.InstanceID, inst *instanceState, node Node, input any) {
	if inst.status == StatusPaused {
		return
	}
	inst.node[node.ID] = NodeRunning
	e.queue.push(instanceID, node, input, inst.ctx)
	e.drainQueue()
}

// drainQueue feeds as many ready items as the worker channel will
// accept without blocking the coordinator, mirroring the teacher's
// enqueueReadyControls.
func (e *Engine) drainQueue() {
	for e.queue.len() > 0 {
		item, ok := e.queue.pop()
		if !ok {
			return
		}
		select {
		case e.workChan <- item:
		default:
			e.queue.pushFront(item)
			return
		}
	}
}

func (e *Engine) scheduleRetry(ctx context.Context, inst *instanceState, instanceID domain.InstanceID, node Node, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-inst.ctx.Done():
			return
		}
		msg := controlMsg{kind: msgRetryReady, instance: instanceID, node: node.ID}
		select {
		case e.mailbox <- msg:
		case <-ctx.Done():
		}
	}()
}

// skipDescendants marks every downstream node of a permanently failed,
// continue-on-failure node as Skipped: those nodes can never reach
// in-degree zero through this branch, so they would otherwise never
// settle.
func (e *Engine) skipDescendants(inst *instanceState, failed domain.NodeID) {
	queue := append([]domain.NodeID{}, inst.def.dependents[failed]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		switch inst.node[id] {
		case NodeCompleted, NodeFailed, NodeSkipped:
			continue
		}
		inst.node[id] = NodeSkipped
		queue = append(queue, inst.def.dependents[id]...)
	}
}

func (e *Engine) maybeFinalize(instanceID domain.InstanceID, inst *instanceState) {
	for _, id := range inst.def.order {
		switch inst.node[id] {
		case NodeCompleted, NodeFailed, NodeSkipped:
		default:
			return
		}
	}
	if inst.status == StatusRunning {
		inst.status = StatusCompleted
	}
	e.finalize(instanceID, inst)
}

func (e *Engine) finalize(instanceID domain.InstanceID, inst *instanceState) {
	results := make(map[domain.NodeID]any)
	for _, id := range inst.def.order {
		if inst.def.isTerminal(id) {
			if out, ok := inst.outputs[id]; ok {
				results[id] = out
			}
		}
	}
	e.publish(Outcome{
		Instance: instanceID,
		Workflow: inst.workflow,
		Status:   inst.status,
		Results:  results,
		Err:      inst.err,
	})
}

func isTerminalStatus(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// execute runs on a worker goroutine: capability-check the node's
// plugin call, then invoke its function through the check engine plus
// plugin manager, per spec.md §4.H "Worker pool".
func (e *Engine) execute(ctx context.Context, item dispatchItem) {
	timeoutSecs := item.node.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = defaultNodeTimeoutSecs
	}
	callCtx, cancel := context.WithTimeout(item.ctx, time.Duration(timeoutSecs*float64(time.Second)))
	defer cancel()

	if item.node.IsPassThrough() {
		e.report(ctx, msgNodeCompleted, item, item.input, nil)
		return
	}

	if err := e.checker.Check(item.node.Plugin, domain.PluginCallRequest(string(item.node.Plugin), item.node.Function)); err != nil {
		e.report(ctx, msgNodeFailed, item, nil, lionerr.NewWorkflowError(lionerr.WorkflowExecutionFailed, "", string(item.node.ID), "capability check denied node execution", err))
		return
	}

	output, err := e.invoker.Invoke(callCtx, item.node.Plugin, item.node.Function, item.input)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			err = lionerr.NewWorkflowError(lionerr.WorkflowTimeout, "", string(item.node.ID), "node execution timed out", err)
		} else {
			err = lionerr.NewWorkflowError(lionerr.WorkflowExecutionFailed, "", string(item.node.ID), "node execution failed", err)
		}
		e.report(ctx, msgNodeFailed, item, nil, err)
		return
	}
	e.report(ctx, msgNodeCompleted, item, output, nil)
}

func (e *Engine) report(ctx context.Context, kind msgKind, item dispatchItem, output any, err error) {
	msg := controlMsg{kind: kind, instance: item.instance, node: item.node.ID, output: output, err: err}
	select {
	case e.mailbox <- msg:
	case <-ctx.Done():
	}
}
