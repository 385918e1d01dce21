package saga

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

const (
	defaultStepTimeoutSecs  = 30
	defaultCheckIntervalSec = 5
)

// Invoker dispatches a saga step (or compensation) action to the plugin
// that owns it. *lifecycle.Registry satisfies this interface.
type Invoker interface {
	Invoke(ctx context.Context, plugin domain.PluginID, functionName string, input any) (any, error)
}

// Outcome is published once a saga instance reaches a terminal status.
type Outcome struct {
	Saga       domain.SagaID
	Status     Status
	Results    map[domain.StepID]any
	StepErrors map[domain.StepID]error
	Err        error
}

// Snapshot is a point-in-time view of a saga instance's progress.
type Snapshot struct {
	Status Status
	Step   map[domain.StepID]StepStatus
	Err    error
}

type msgKind int

const (
	msgCreate msgKind = iota
	msgStart
	msgAbort
	msgStepDone
	msgStepFailed
	msgCompensationDone
	msgCheckTimeouts
	msgQueryStatus
)

type controlMsg struct {
	kind   msgKind
	saga   domain.SagaID
	def    *Definition
	g      *graph
	step   domain.StepID
	output any
	err    error
	reason string
	reply  chan Snapshot
}

// instanceState is the coordinator-owned mutable state of one saga
// instance. It is touched exclusively by the single coordinator
// goroutine; every external interaction goes through the mailbox, so no
// lock guards it.
type instanceState struct {
	definition *Definition
	g          *graph
	status     Status
	step       map[domain.StepID]StepStatus
	inDegree   map[domain.StepID]int
	outputs    map[domain.StepID]any
	stepErrs   map[domain.StepID]error
	err        error
	startTime  time.Time

	compensationOrder []domain.StepID
	compensationIdx   int
	compensationErrs  []string
	// compensatingFromAbort marks compensation entered via Abort or the
	// timeout monitor rather than a step failure: the saga's final
	// status stays Aborted instead of Compensated/FailedWithErrors.
	compensatingFromAbort bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Engine is the single-writer saga coordinator of spec.md §4.I,
// structured like internal/workflow's Engine: one coordinator goroutine
// owns all instance state, and a bounded pool of stateless workers
// execute step and compensation invocations dispatched through a
// priority-ordered ready queue.
type Engine struct {
	checker       *check.Engine
	invoker       Invoker
	logger        *slog.Logger
	workers       int
	checkInterval time.Duration

	mailbox  chan controlMsg
	workChan chan dispatchItem
	queue    *readyQueue

	instances map[domain.SagaID]*instanceState

	subMu       sync.Mutex
	subscribers []chan Outcome
}

// Config tunes an Engine's concurrency and buffering.
type Config struct {
	Workers       int
	QueueSize     int
	CheckInterval time.Duration
	Logger        *slog.Logger
}

// New constructs an Engine. checker authorizes each step's plugin
// invocation the same way workflow nodes are authorized.
func New(checker *check.Engine, invoker Invoker, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckIntervalSec * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		checker:       checker,
		invoker:       invoker,
		logger:        cfg.Logger,
		workers:       cfg.Workers,
		checkInterval: cfg.CheckInterval,
		mailbox:       make(chan controlMsg, cfg.QueueSize),
		workChan:      make(chan dispatchItem, cfg.QueueSize),
		queue:         newReadyQueue(),
		instances:     make(map[domain.SagaID]*instanceState),
	}
}

// Subscribe returns a channel of terminal saga outcomes.
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
	for _, sub := range e.subscribers {
		select {
		case sub <- outcome:
		default:
			e.logger.Warn("saga outcome subscriber full, dropping", "saga", outcome.Saga)
		}
	}
}

// Run drives the coordinator goroutine, the worker pool, and the
// background timeout monitor until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			e.runWorker(ctx)
			return nil
		})
	}
	g.Go(func() error {
		e.runCoordinator(ctx)
		return nil
	})
	g.Go(func() error {
		e.runTimeoutMonitor(ctx)
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

// runTimeoutMonitor scans running sagas on checkInterval, aborting any
// whose elapsed time exceeds its definition's timeout, per spec.md §4.I
// "Timeouts".
func (e *Engine) runTimeoutMonitor(ctx context.Context) {
	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.send(ctx, controlMsg{kind: msgCheckTimeouts})
		case <-ctx.Done():
			return
		}
	}
}

// Create validates def's DAG and registers a new saga instance in
// Created status, returning its ID.
func (e *Engine) Create(ctx context.Context, def *Definition) (domain.SagaID, error) {
	if def.ID == "" {
		def.ID = domain.NewSagaID()
	}
	g, err := build(def)
	if err != nil {
		return "", lionerr.NewSagaError(lionerr.SagaStepFailed, string(def.ID), "", err.Error(), err)
	}
	if sendErr := e.send(ctx, controlMsg{kind: msgCreate, def: def, g: g}); sendErr != nil {
		return "", sendErr
	}
	return def.ID, nil
}

// Start transitions a Created saga to Running and dispatches its
// zero-dependency steps.
func (e *Engine) Start(ctx context.Context, sagaID domain.SagaID) error {
	return e.send(ctx, controlMsg{kind: msgStart, saga: sagaID})
}

// Abort transitions a Created or Running saga to Aborted and begins
// compensation, per spec.md §4.I "Abort".
func (e *Engine) Abort(ctx context.Context, sagaID domain.SagaID, reason string) error {
	return e.send(ctx, controlMsg{kind: msgAbort, saga: sagaID, reason: reason})
}

func (e *Engine) send(ctx context.Context, msg controlMsg) error {
	select {
	case e.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a point-in-time snapshot of a saga instance.
func (e *Engine) Status(ctx context.Context, sagaID domain.SagaID) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := e.send(ctx, controlMsg{kind: msgQueryStatus, saga: sagaID, reply: reply}); err != nil {
		return Snapshot{}, err
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
	case msgCreate:
		e.handleCreate(msg)
	case msgStart:
		e.handleStart(msg)
	case msgAbort:
		e.handleAbort(msg)
	case msgStepDone:
		e.handleStepDone(ctx, msg)
	case msgStepFailed:
		e.handleStepFailed(ctx, msg)
	case msgCompensationDone:
		e.handleCompensationDone(msg)
	case msgCheckTimeouts:
		e.handleCheckTimeouts(ctx)
	case msgQueryStatus:
		e.handleQueryStatus(msg)
	}
}

func (e *Engine) handleCreate(msg controlMsg) {
	inst := &instanceState{
		definition: msg.def,
		g:          msg.g,
		status:     StatusCreated,
		step:       make(map[domain.StepID]StepStatus, len(msg.def.Steps)),
		inDegree:   make(map[domain.StepID]int, len(msg.def.Steps)),
		outputs:    make(map[domain.StepID]any),
		stepErrs:   make(map[domain.StepID]error),
	}
	for _, s := range msg.def.Steps {
		inst.step[s.ID] = StepPending
		inst.inDegree[s.ID] = msg.g.initialInDegree(s.ID)
	}
	e.instances[msg.def.ID] = inst
}

func (e *Engine) handleStart(msg controlMsg) {
	inst, ok := e.instances[msg.saga]
	if !ok || inst.status != StatusCreated {
		return
	}
	inst.ctx, inst.cancel = context.WithCancel(context.Background())
	inst.status = StatusRunning
	inst.startTime = time.Now()
	for _, id := range inst.g.order {
		if inst.inDegree[id] == 0 {
			e.dispatchStep(msg.saga, inst, id)
		}
	}
}

func (e *Engine) dispatchStep(sagaID domain.SagaID, inst *instanceState, id domain.StepID) {
	step := inst.g.stepByID[id]
	inst.step[id] = StepRunning
	e.queue.push(sagaID, step, false, inst.ctx)
	e.drainQueue()
}

// drainQueue feeds as many ready items as the worker channel will
// accept without blocking the coordinator, mirroring
// internal/workflow's drainQueue.
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

func (e *Engine) handleStepDone(ctx context.Context, msg controlMsg) {
	inst, ok := e.instances[msg.saga]
	if !ok || inst.status != StatusRunning {
		// A forward step dispatched before the saga left Running may
		// still complete after it entered Compensating or a terminal
		// status; it no longer feeds any successor.
		return
	}
	inst.step[msg.step] = StepCompleted
	inst.outputs[msg.step] = msg.output

	for _, successor := range inst.g.dependents[msg.step] {
		if inst.step[successor] != StepPending {
			continue
		}
		inst.inDegree[successor]--
		if inst.inDegree[successor] == 0 {
			e.dispatchStep(msg.saga, inst, successor)
		}
	}
	e.maybeComplete(msg.saga, inst)
}

func (e *Engine) handleStepFailed(ctx context.Context, msg controlMsg) {
	inst, ok := e.instances[msg.saga]
	if !ok || inst.status != StatusRunning {
		return
	}
	step := inst.g.stepByID[msg.step]
	inst.step[msg.step] = StepFailed
	inst.stepErrs[msg.step] = msg.err

	switch {
	case step.TriggersCompensation:
		e.enterCompensating(msg.saga, inst, false)
	case step.ContinueOnFailure:
		e.skipDescendants(inst, msg.step)
		e.maybeComplete(msg.saga, inst)
	default:
		inst.status = StatusFailed
		inst.err = msg.err
		e.finalize(msg.saga, inst)
	}
}

// skipDescendants marks the downstream subtree of a permanently failed,
// continue-on-failure step as Skipped: those steps can never naturally
// reach in-degree zero through the failed branch.
func (e *Engine) skipDescendants(inst *instanceState, failed domain.StepID) {
	queue := append([]domain.StepID{}, inst.g.dependents[failed]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if inst.step[id].isTerminal() {
			continue
		}
		inst.step[id] = StepSkipped
		queue = append(queue, inst.g.dependents[id]...)
	}
}

// enterCompensating begins reverse-order compensation of completed
// steps, per spec.md §4.I "Compensation". abortEntry is true when
// compensation was triggered by Abort or the timeout monitor rather
// than a step failure.
func (e *Engine) enterCompensating(sagaID domain.SagaID, inst *instanceState, abortEntry bool) {
	if inst.status == StatusCompensating {
		return
	}
	inst.compensatingFromAbort = abortEntry
	inst.status = StatusCompensating
	inst.compensationOrder = nil
	for _, id := range inst.g.compensationOrder() {
		step := inst.g.stepByID[id]
		if inst.step[id] == StepCompleted && step.Compensation != "" {
			inst.compensationOrder = append(inst.compensationOrder, id)
		}
	}
	inst.compensationIdx = 0
	e.queue.discard(sagaID)
	e.dispatchNextCompensation(sagaID, inst)
}

func (e *Engine) dispatchNextCompensation(sagaID domain.SagaID, inst *instanceState) {
	if inst.compensationIdx >= len(inst.compensationOrder) {
		e.finishCompensation(sagaID, inst)
		return
	}
	id := inst.compensationOrder[inst.compensationIdx]
	step := inst.g.stepByID[id]
	inst.step[id] = StepCompensating
	e.queue.push(sagaID, compensationStep(step), true, inst.ctx)
	e.drainQueue()
}

// compensationStep produces the synthetic Step dispatched for a
// compensating invocation: same service, but the compensation action
// and its recorded command.
func compensationStep(step Step) Step {
	step.Action = step.Compensation
	step.Command = step.CompensationCommand
	return step
}

func (e *Engine) handleCompensationDone(msg controlMsg) {
	inst, ok := e.instances[msg.saga]
	if !ok {
		return
	}
	if msg.err != nil {
		inst.step[msg.step] = StepCompensationFailed
		inst.compensationErrs = append(inst.compensationErrs, string(msg.step)+": "+msg.err.Error())
	} else {
		inst.step[msg.step] = StepCompensated
	}
	inst.compensationIdx++
	e.dispatchNextCompensation(msg.saga, inst)
}

func (e *Engine) finishCompensation(sagaID domain.SagaID, inst *instanceState) {
	switch {
	case inst.compensatingFromAbort:
		// Abort/timeout always ends in Aborted; any compensation
		// failures are still recorded on inst.err for visibility.
		inst.status = StatusAborted
		if len(inst.compensationErrs) > 0 {
			inst.err = lionerr.NewSagaError(lionerr.SagaCompensationFailed, string(sagaID), "", joinErrs(inst.compensationErrs), inst.err)
		}
	case len(inst.compensationErrs) == 0:
		inst.status = StatusCompensated
	default:
		inst.status = StatusFailedWithErrs
		inst.err = lionerr.NewSagaError(lionerr.SagaCompensationFailed, string(sagaID), "", joinErrs(inst.compensationErrs), nil)
	}
	e.finalize(sagaID, inst)
}

func joinErrs(errs []string) string {
	joined := errs[0]
	for _, e := range errs[1:] {
		joined += "; " + e
	}
	return joined
}

func (e *Engine) handleAbort(msg controlMsg) {
	inst, ok := e.instances[msg.saga]
	if !ok {
		return
	}
	if inst.status != StatusCreated && inst.status != StatusRunning {
		return
	}
	inst.status = StatusAborted
	inst.err = lionerr.NewSagaError(lionerr.SagaAborted, string(msg.saga), "", msg.reason, nil)
	e.enterCompensating(msg.saga, inst, true)
}

func (e *Engine) handleCheckTimeouts(ctx context.Context) {
	now := time.Now()
	for sagaID, inst := range e.instances {
		if inst.status != StatusRunning {
			continue
		}
		elapsed := now.Sub(inst.startTime).Seconds()
		if inst.definition.TimeoutSecs > 0 && elapsed > inst.definition.TimeoutSecs {
			inst.status = StatusAborted
			inst.err = lionerr.NewSagaError(lionerr.SagaTimeout, string(sagaID), "", "saga timeout", nil)
			e.enterCompensating(sagaID, inst, true)
		}
	}
}

func (e *Engine) handleQueryStatus(msg controlMsg) {
	inst, ok := e.instances[msg.saga]
	if !ok {
		msg.reply <- Snapshot{}
		return
	}
	stepCopy := make(map[domain.StepID]StepStatus, len(inst.step))
	for k, v := range inst.step {
		stepCopy[k] = v
	}
	msg.reply <- Snapshot{Status: inst.status, Step: stepCopy, Err: inst.err}
}

// maybeComplete transitions a Running saga to Completed once every step
// has reached a terminal status, and finalizes it.
func (e *Engine) maybeComplete(sagaID domain.SagaID, inst *instanceState) {
	for _, id := range inst.g.order {
		if !inst.step[id].isTerminal() {
			return
		}
	}
	if inst.status == StatusRunning {
		inst.status = StatusCompleted
	}
	e.finalize(sagaID, inst)
}

func (e *Engine) finalize(sagaID domain.SagaID, inst *instanceState) {
	if inst.cancel != nil {
		inst.cancel()
	}
	e.queue.discard(sagaID)
	results := make(map[domain.StepID]any, len(inst.outputs))
	for id, out := range inst.outputs {
		results[id] = out
	}
	stepErrs := make(map[domain.StepID]error, len(inst.stepErrs))
	for id, err := range inst.stepErrs {
		stepErrs[id] = err
	}
	e.publish(Outcome{Saga: sagaID, Status: inst.status, Results: results, StepErrors: stepErrs, Err: inst.err})
}

// execute runs on a worker goroutine: it authorizes and invokes a
// dispatched step or compensation action and reports the result back to
// the coordinator via the mailbox.
func (e *Engine) execute(ctx context.Context, item dispatchItem) {
	timeoutSecs := item.step.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = defaultStepTimeoutSecs
	}
	callCtx, cancel := context.WithTimeout(item.ctx, time.Duration(timeoutSecs*float64(time.Second)))
	defer cancel()

	req := domain.PluginCallRequest(string(item.step.Service), item.step.Action)
	if err := e.checker.Check(item.step.Service, req); err != nil {
		e.report(ctx, item, nil, lionerr.NewSagaError(lionerr.SagaStepFailed, "", string(item.step.ID), "capability denied", err))
		return
	}

	output, err := e.invoker.Invoke(callCtx, item.step.Service, item.step.Action, item.step.Command)
	if err != nil {
		kind := lionerr.SagaStepFailed
		if callCtx.Err() == context.DeadlineExceeded {
			kind = lionerr.SagaTimeout
		}
		e.report(ctx, item, nil, lionerr.NewSagaError(kind, "", string(item.step.ID), "step execution failed", err))
		return
	}
	e.report(ctx, item, output, nil)
}

func (e *Engine) report(ctx context.Context, item dispatchItem, output any, err error) {
	var kind msgKind
	switch {
	case item.compensation:
		// Both success and failure of a compensation invocation merely
		// advance to the next compensation step.
		kind = msgCompensationDone
	case err != nil:
		kind = msgStepFailed
	default:
		kind = msgStepDone
	}
	msg := controlMsg{kind: kind, saga: item.saga, step: item.step.ID, output: output, err: err}
	select {
	case e.mailbox <- msg:
	case <-ctx.Done():
	}
}
