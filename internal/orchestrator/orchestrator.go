// Package orchestrator implements the single-writer event dispatch actor
// of spec.md §4.E: one goroutine owns the sole receiver of a bounded
// queue of SystemEvents, appends each to the log, dispatches it by
// variant, and broadcasts every terminal event (task, plugin and agent
// outcomes) to observers. Grounded on the
// coordinator-goroutine-owns-all-mutable-state pattern of
// internal/infrastructure/engine/worker_pool.go, adapted from a
// dependency-graph coordinator to an event-dispatch loop.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/eventlog"
)

// PluginInvoker calls a plugin through its instance interface (§4.F) and
// returns its result or an error. The orchestrator does not know how
// plugins are hosted; it only needs this one call.
type PluginInvoker func(ctx context.Context, plugin domain.PluginID, input any) (result any, err error)

// AgentStep is one event yielded by an agent's internal loop: exactly one
// of Partial, Done, or Err is set.
type AgentStep struct {
	Partial string
	Done    bool
	Result  any
	Err     error
}

// AgentDriver drives an agent's internal event loop, streaming AgentStep
// values on the returned channel until Done or Err is seen, at which
// point the channel is closed.
type AgentDriver func(ctx context.Context, agentID, prompt string) <-chan AgentStep

// TaskRunner synthesizes the outcome of a TaskSubmitted event's payload
// (spec.md §4.E step 2: "synthesize TaskCompleted (or TaskError)").
type TaskRunner func(ctx context.Context, taskID domain.TaskID, payload any) (result any, err error)

const defaultQueueSize = 100

// Orchestrator is the single-writer actor that owns event dispatch. Its
// mailbox is a bounded channel; Submit blocks when it is full, giving the
// backpressure spec.md §4.E calls for.
type Orchestrator struct {
	log     *eventlog.Log
	logger  *slog.Logger
	invoke  PluginInvoker
	agent   AgentDriver
	runTask TaskRunner

	mailbox chan eventlog.SystemEvent

	mu          sync.Mutex
	subscribers []chan eventlog.SystemEvent

	done chan struct{}
}

// Config bundles the optional hooks an Orchestrator dispatches into.
// Any hook left nil causes its corresponding event kind to be logged as
// an immediate error result, rather than panicking.
type Config struct {
	QueueSize int // 0 means defaultQueueSize
	Invoke    PluginInvoker
	Agent     AgentDriver
	RunTask   TaskRunner
	Logger    *slog.Logger
}

// New builds an Orchestrator backed by log. Run must be called to start
// the dispatch loop.
func New(log *eventlog.Log, cfg Config) *Orchestrator {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		log:     log,
		logger:  logger,
		invoke:  cfg.Invoke,
		agent:   cfg.Agent,
		runTask: cfg.RunTask,
		mailbox: make(chan eventlog.SystemEvent, size),
		done:    make(chan struct{}),
	}
}

// Submit enqueues event for dispatch, blocking if the mailbox is full
// (spec.md §4.E "Queue is bounded ... producers block/wait on full").
// Submit returns ctx.Err() if ctx is cancelled before the event is
// accepted.
func (o *Orchestrator) Submit(ctx context.Context, event eventlog.SystemEvent) error {
	select {
	case o.mailbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers an observer for terminal events (task, plugin and
// agent outcomes). The returned
// channel is closed when the Orchestrator's Run loop exits. Observers
// that never read are tolerated — the orchestrator drops a broadcast to a
// full subscriber channel rather than blocking the dispatch loop on a
// slow or absent listener (spec.md §4.E "senders that have no listeners
// are tolerated").
func (o *Orchestrator) Subscribe() <-chan eventlog.SystemEvent {
	ch := make(chan eventlog.SystemEvent, 16)
	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) broadcast(event eventlog.SystemEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range o.subscribers {
		select {
		case sub <- event:
		default:
			// fire-and-forget: a full or abandoned subscriber never blocks
			// the dispatch loop.
		}
	}
}

// Run drives the dispatch loop until ctx is cancelled, at which point it
// drains any events already in the mailbox before exiting (spec.md §4.E
// "the actor drains pending events, then exits"). Run is meant to be
// called once, from one goroutine, for the Orchestrator's lifetime.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	defer o.closeSubscribers()

	for {
		select {
		case event := <-o.mailbox:
			o.dispatch(ctx, event)
		case <-ctx.Done():
			o.drain(ctx)
			return
		}
	}
}

func (o *Orchestrator) drain(ctx context.Context) {
	for {
		select {
		case event := <-o.mailbox:
			o.dispatch(context.Background(), event)
		default:
			return
		}
	}
}

func (o *Orchestrator) closeSubscribers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range o.subscribers {
		close(sub)
	}
	o.subscribers = nil
}

// dispatch implements spec.md §4.E steps 1-3 for a single event.
func (o *Orchestrator) dispatch(ctx context.Context, event eventlog.SystemEvent) {
	o.log.Append(event)

	if event.Kind.Terminal() {
		o.broadcast(event)
		return
	}

	switch event.Kind {
	case eventlog.EventTaskSubmitted:
		o.dispatchTask(ctx, event)
	case eventlog.EventPluginInvoked:
		o.dispatchPlugin(ctx, event)
	case eventlog.EventAgentSpawned:
		o.dispatchAgent(ctx, event)
	}
}

func (o *Orchestrator) dispatchTask(ctx context.Context, event eventlog.SystemEvent) {
	meta := eventlog.NewMetadata(event.Meta.CorrelationID, event.Meta.Context)
	if o.runTask == nil {
		o.submitDerived(eventlog.TaskFailed(event.TaskID, "no task runner configured", meta))
		return
	}
	result, err := o.runTask(ctx, event.TaskID, event.Payload)
	if err != nil {
		o.submitDerived(eventlog.TaskFailed(event.TaskID, err.Error(), meta))
		return
	}
	o.submitDerived(eventlog.TaskCompleted(event.TaskID, result, meta))
}

func (o *Orchestrator) dispatchPlugin(ctx context.Context, event eventlog.SystemEvent) {
	meta := eventlog.NewMetadata(event.Meta.CorrelationID, event.Meta.Context)
	if o.invoke == nil {
		o.submitDerived(eventlog.PluginFailed(event.Plugin, "no plugin invoker configured", meta))
		return
	}
	result, err := o.invoke(ctx, event.Plugin, event.Input)
	if err != nil {
		o.submitDerived(eventlog.PluginFailed(event.Plugin, err.Error(), meta))
		return
	}
	o.submitDerived(eventlog.PluginResult(event.Plugin, result, meta))
}

func (o *Orchestrator) dispatchAgent(ctx context.Context, event eventlog.SystemEvent) {
	if o.agent == nil {
		meta := eventlog.NewMetadata(event.Meta.CorrelationID, event.Meta.Context)
		o.submitDerived(eventlog.AgentFailed(event.AgentID, "no agent driver configured", meta))
		return
	}
	steps := o.agent(ctx, event.AgentID, event.Prompt)
	for step := range steps {
		meta := eventlog.NewMetadata(event.Meta.CorrelationID, event.Meta.Context)
		switch {
		case step.Err != nil:
			o.submitDerived(eventlog.AgentFailed(event.AgentID, step.Err.Error(), meta))
		case step.Done:
			o.submitDerived(eventlog.AgentCompleted(event.AgentID, step.Result, meta))
		default:
			// Partial output is logged directly rather than re-entering the
			// mailbox, since spec.md §4.E says partial events are never
			// broadcast and dispatch() would otherwise treat every event
			// uniformly.
			o.log.Append(eventlog.AgentPartialOutput(event.AgentID, step.Partial, meta))
		}
	}
}

// submitDerived appends and dispatches a derived terminal event directly,
// without going back through the mailbox: derived events are produced
// from inside the dispatch loop itself, so re-enqueuing them risks
// deadlocking a full mailbox against its own consumer.
func (o *Orchestrator) submitDerived(event eventlog.SystemEvent) {
	o.dispatch(context.Background(), event)
}

// Done returns a channel closed once Run has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}
