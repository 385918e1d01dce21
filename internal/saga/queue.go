package saga

import (
	"container/heap"
	"context"

	"github.com/lion-dev/lion/internal/domain"
)

// dispatchItem is one step queued for execution by the worker pool.
type dispatchItem struct {
	saga         domain.SagaID
	step         Step
	compensation bool
	ctx          context.Context
	seq          int
}

// readyQueue is a priority queue of dispatchItems ordered by Priority
// (higher first) with FIFO tiebreak on a monotonic sequence number,
// mirroring internal/workflow's readyQueue.
type readyQueue struct {
	items []dispatchItem
	seq   int
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	heap.Init((*heapAdapter)(q))
	return q
}

func (q *readyQueue) push(sagaID domain.SagaID, step Step, compensation bool, ctx context.Context) {
	q.seq++
	heap.Push((*heapAdapter)(q), dispatchItem{saga: sagaID, step: step, compensation: compensation, ctx: ctx, seq: q.seq})
}

func (q *readyQueue) pop() (dispatchItem, bool) {
	if len(q.items) == 0 {
		return dispatchItem{}, false
	}
	item := heap.Pop((*heapAdapter)(q)).(dispatchItem)
	return item, true
}

// pushFront re-queues an item that could not be handed to a full work
// channel, preserving its original priority and sequence number so it
// does not lose its place relative to items queued after it.
func (q *readyQueue) pushFront(item dispatchItem) {
	heap.Push((*heapAdapter)(q), item)
}

// discard drops every queued item belonging to the given saga, used
// when a saga is aborted or finalized while steps are still queued.
func (q *readyQueue) discard(sagaID domain.SagaID) {
	kept := q.items[:0]
	for _, item := range q.items {
		if item.saga != sagaID {
			kept = append(kept, item)
		}
	}
	q.items = kept
	heap.Init((*heapAdapter)(q))
}

func (q *readyQueue) len() int {
	return len(q.items)
}

type heapAdapter readyQueue

func (h *heapAdapter) Len() int { return len(h.items) }

func (h *heapAdapter) Less(i, j int) bool {
	if h.items[i].step.Priority != h.items[j].step.Priority {
		return h.items[i].step.Priority > h.items[j].step.Priority
	}
	return h.items[i].seq < h.items[j].seq
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
