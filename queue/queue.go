package queue

import (
	"sync"

	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/step"
)

// ActionQueue holds the pending steps of every active run, keyed by
// run ID. It is safe for concurrent use across runs; within one run
// the orchestrator is the single consumer.
type ActionQueue struct {
	mu    sync.Mutex
	items map[string][]*step.ActionStep
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{items: make(map[string][]*step.ActionStep)}
}

// Push appends a step to the tail of the run's queue.
func (q *ActionQueue) Push(runID id.RunID, s *step.ActionStep) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := runID.String()
	q.items[key] = append(q.items[key], s)
}

// PushAll appends a batch to the tail, preserving order.
func (q *ActionQueue) PushAll(runID id.RunID, steps []*step.ActionStep) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := runID.String()
	q.items[key] = append(q.items[key], steps...)
}

// PushFront prepends a step so it pops next. Used exclusively for
// repair and obstacle-dismiss steps.
func (q *ActionQueue) PushFront(runID id.RunID, s *step.ActionStep) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := runID.String()
	q.items[key] = append([]*step.ActionStep{s}, q.items[key]...)
}

// PushFrontAll prepends a batch preserving its internal order: after
// PushFrontAll([a, b]) the next pops return a then b, ahead of any
// previously queued steps.
func (q *ActionQueue) PushFrontAll(runID id.RunID, steps []*step.ActionStep) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := runID.String()
	merged := make([]*step.ActionStep, 0, len(steps)+len(q.items[key]))
	merged = append(merged, steps...)
	merged = append(merged, q.items[key]...)
	q.items[key] = merged
}

// Pop removes and returns the head of the run's queue.
// Returns false when the queue is empty.
func (q *ActionQueue) Pop(runID id.RunID) (*step.ActionStep, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := runID.String()
	items := q.items[key]
	if len(items) == 0 {
		return nil, false
	}
	head := items[0]
	q.items[key] = items[1:]
	return head, true
}

// Peek returns the head without removing it.
func (q *ActionQueue) Peek(runID id.RunID) (*step.ActionStep, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[runID.String()]
	if len(items) == 0 {
		return nil, false
	}
	return items[0], true
}

// Size returns the number of pending steps for the run.
func (q *ActionQueue) Size(runID id.RunID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[runID.String()])
}

// IsEmpty reports whether the run has no pending steps.
func (q *ActionQueue) IsEmpty(runID id.RunID) bool {
	return q.Size(runID) == 0
}

// GetAll returns a copy of the run's pending steps in order.
func (q *ActionQueue) GetAll(runID id.RunID) []*step.ActionStep {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[runID.String()]
	out := make([]*step.ActionStep, len(items))
	copy(out, items)
	return out
}

// Clear discards the run's pending steps and releases its slot.
func (q *ActionQueue) Clear(runID id.RunID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, runID.String())
}
