package queue

import (
	"sync"

	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/step"
)

// History is the append-only log of executed steps per run. Entries
// are never mutated after Record; readers get copies of the slice
// header so appends cannot race with iteration.
type History struct {
	mu      sync.Mutex
	entries map[string][]*step.ExecutedStep
}

// NewHistory creates an empty history log.
func NewHistory() *History {
	return &History{entries: make(map[string][]*step.ExecutedStep)}
}

// Record appends one executed step to the run's log.
func (h *History) Record(runID id.RunID, x *step.ExecutedStep) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := runID.String()
	h.entries[key] = append(h.entries[key], x)
}

// All returns the full ordered log for the run.
func (h *History) All(runID id.RunID) []*step.ExecutedStep {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.entries[runID.String()]
	out := make([]*step.ExecutedStep, len(entries))
	copy(out, entries)
	return out
}

// Recent returns up to n of the most recent entries, oldest first.
// The healer consumes this bounded window rather than the full log to
// cap prompt size.
func (h *History) Recent(runID id.RunID, n int) []*step.ExecutedStep {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.entries[runID.String()]
	if n <= 0 || n >= len(entries) {
		out := make([]*step.ExecutedStep, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]*step.ExecutedStep, n)
	copy(out, entries[len(entries)-n:])
	return out
}

// Last returns the most recent entry, or false when the log is empty.
func (h *History) Last(runID id.RunID) (*step.ExecutedStep, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.entries[runID.String()]
	if len(entries) == 0 {
		return nil, false
	}
	return entries[len(entries)-1], true
}

// Size returns the number of recorded entries for the run.
func (h *History) Size(runID id.RunID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries[runID.String()])
}

// Clear discards the run's log. Called after the log has been
// back-filled onto the terminal TestRun.
func (h *History) Clear(runID id.RunID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, runID.String())
}
