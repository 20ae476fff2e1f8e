// Package ext defines the extension system for Pilot.
// Extensions are notified of lifecycle events (run started, step
// completed, obstacle detected, etc.) and can react to them — logging,
// metrics, webhooks, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/probelab/pilot/healer"
	"github.com/probelab/pilot/obstacle"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when the orchestrator begins executing a run.
type RunStarted interface {
	OnRunStarted(ctx context.Context, r *run.TestRun) error
}

// RunFinished is called when a run reaches any terminal state.
type RunFinished interface {
	OnRunFinished(ctx context.Context, r *run.TestRun, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepCompleted is called after a step executes successfully.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, r *run.TestRun, x *step.ExecutedStep) error
}

// StepFailed is called when a step fails terminally (repair budget
// exhausted or no repair proposed).
type StepFailed interface {
	OnStepFailed(ctx context.Context, r *run.TestRun, x *step.ExecutedStep, err error) error
}

// StepRetrying is called when a failed step is scheduled for a repair
// attempt.
type StepRetrying interface {
	OnStepRetrying(ctx context.Context, r *run.TestRun, s *step.ActionStep, attempt int) error
}

// ──────────────────────────────────────────────────
// Agent hooks
// ──────────────────────────────────────────────────

// ObstacleDetected is called when the detector finds an actionable
// overlay.
type ObstacleDetected interface {
	OnObstacleDetected(ctx context.Context, r *run.TestRun, d *obstacle.Detection) error
}

// RepairProposed is called when the healer returns a non-empty repair.
type RepairProposed interface {
	OnRepairProposed(ctx context.Context, r *run.TestRun, rep *healer.Repair) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
