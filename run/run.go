// Package run defines the TestRun aggregate — the top-level record of
// one autonomous QA session — and its persistence contract.
package run

import (
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/step"
)

// Status represents the lifecycle state of a test run.
type Status string

const (
	// StatusPending means the run is created but not yet scheduled.
	StatusPending Status = "pending"
	// StatusRunning means the orchestrator is executing the run.
	StatusRunning Status = "running"
	// StatusCompleted means the run finished with its goal-critical
	// steps succeeding.
	StatusCompleted Status = "completed"
	// StatusFailed means a goal-critical step failed terminally or the
	// run aborted on an unrecoverable error.
	StatusFailed Status = "failed"
	// StatusCancelled means the run was externally cancelled.
	StatusCancelled Status = "cancelled"
	// StatusTimeout means the run exceeded its wall-clock budget.
	StatusTimeout Status = "timeout"
)

// Terminal reports whether the status is final. A terminal run is
// immutable except for summary back-fill.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// state-machine edge.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next.Terminal()
	}
	return false
}

// ExecutionMode selects how aggressively the agent explores.
type ExecutionMode string

const (
	ModeStandard ExecutionMode = "standard"
	ModeFast     ExecutionMode = "fast"
	ModeThorough ExecutionMode = "thorough"
)

// TestRun is the aggregate root for one autonomous QA session. It is
// created by the submission workflow and mutated exclusively by the
// orchestrator while running.
type TestRun struct {
	pilot.Entity

	ID        id.RunID      `json:"id"`
	TenantID  string        `json:"tenant_id"`
	TargetURL string        `json:"target_url"`
	Goals     []string      `json:"goals"`
	Persona   string        `json:"persona,omitempty"`
	Mode      ExecutionMode `json:"mode,omitempty"`

	Status        Status `json:"status"`
	Progress      int    `json:"progress"` // percent, 0–100
	PlannedSteps  int    `json:"planned_steps"`
	ExecutedSteps int    `json:"executed_steps"`

	// Executed is the ordered, append-only record of completed steps,
	// back-filled from the history log when the run reaches a terminal
	// state.
	Executed []*step.ExecutedStep `json:"executed,omitempty"`

	FailureReason string     `json:"failure_reason,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending TestRun.
func New(tenantID, targetURL string, goals []string) *TestRun {
	return &TestRun{
		Entity:    pilot.NewEntity(),
		ID:        id.NewRunID(),
		TenantID:  tenantID,
		TargetURL: targetURL,
		Goals:     goals,
		Persona:   "standard",
		Mode:      ModeStandard,
		Status:    StatusPending,
	}
}

// Transition moves the run to next, enforcing the state machine.
func (r *TestRun) Transition(next Status) error {
	if !r.Status.CanTransition(next) {
		return pilot.ErrInvalidTransition
	}
	now := time.Now().UTC()
	switch next {
	case StatusRunning:
		r.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		r.CompletedAt = &now
	}
	r.Status = next
	r.Touch()
	return nil
}

// AdvanceProgress recomputes the progress percent from executed vs
// total step counts. Repairs may grow the total beyond the original
// plan, so both counters are taken as-is.
func (r *TestRun) AdvanceProgress(executed, total int) {
	r.ExecutedSteps = executed
	if total <= 0 {
		return
	}
	p := executed * 100 / total
	if p > 100 {
		p = 100
	}
	r.Progress = p
}
