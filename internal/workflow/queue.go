package workflow

import (
	"container/heap"
	"context"

	"github.com/lion-dev/lion/internal/domain"
)

// dispatchItem is one ready-to-run node waiting for a worker, per
// spec.md §4.H "Scheduling policies".
type dispatchItem struct {
	instance domain.InstanceID
	node     Node
	input    any
	ctx      context.Context
	seq      int
}

// readyQueue is a priority queue of dispatchItems: higher Node.Priority
// pops first, ties broken by insertion order (FIFO), per spec.md §4.H
// "Priority queue (higher priority first); ties broken by FIFO." Deadline-
// first ordering and work-stealing are the spec's named optional
// policies; neither is enabled here, so the default priority-then-FIFO
// order is always in effect.
type readyQueue struct {
	items []dispatchItem
	seq   int
}

func newReadyQueue() *readyQueue {
	return &readyQueue{}
}

func (q *readyQueue) push(instance domain.InstanceID, node Node, input any, ctx context.Context) {
	q.seq++
	heap.Push((*heapAdapter)(q), dispatchItem{instance: instance, node: node, input: input, ctx: ctx, seq: q.seq})
}

func (q *readyQueue) pop() (dispatchItem, bool) {
	if len(q.items) == 0 {
		return dispatchItem{}, false
	}
	item := heap.Pop((*heapAdapter)(q)).(dispatchItem)
	return item, true
}

// pushFront re-queues an item that was popped but could not be handed to
// a worker (the work channel was full), preserving its original
// priority and sequence number so it does not lose its place in line.
func (q *readyQueue) pushFront(item dispatchItem) {
	heap.Push((*heapAdapter)(q), item)
}

// discard drops every queued item belonging to instance, used when an
// instance is cancelled or fails per spec.md §4.H "Pending tasks are
// discarded."
func (q *readyQueue) discard(instance domain.InstanceID) {
	kept := q.items[:0]
	for _, item := range q.items {
		if item.instance != instance {
			kept = append(kept, item)
		}
	}
	q.items = kept
	heap.Init((*heapAdapter)(q))
}

func (q *readyQueue) len() int { return len(q.items) }

// heapAdapter implements container/heap.Interface over readyQueue's
// slice without exposing heap mechanics on the public type.
type heapAdapter readyQueue

func (h *heapAdapter) Len() int { return len(h.items) }

func (h *heapAdapter) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.node.Priority != b.node.Priority {
		return a.node.Priority > b.node.Priority
	}
	return a.seq < b.seq
}

func (h *heapAdapter) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *heapAdapter) Push(x any) { h.items = append(h.items, x.(dispatchItem)) }

func (h *heapAdapter) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
