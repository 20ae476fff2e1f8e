package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/probelab/pilot/healer"
	"github.com/probelab/pilot/obstacle"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type runFinishedEntry struct {
	name string
	hook RunFinished
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type stepRetryingEntry struct {
	name string
	hook StepRetrying
}

type obstacleDetectedEntry struct {
	name string
	hook ObstacleDetected
}

type repairProposedEntry struct {
	name string
	hook RepairProposed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	runStarted       []runStartedEntry
	runFinished      []runFinishedEntry
	stepCompleted    []stepCompletedEntry
	stepFailed       []stepFailedEntry
	stepRetrying     []stepRetryingEntry
	obstacleDetected []obstacleDetectedEntry
	repairProposed   []repairProposedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(RunFinished); ok {
		r.runFinished = append(r.runFinished, runFinishedEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(StepRetrying); ok {
		r.stepRetrying = append(r.stepRetrying, stepRetryingEntry{name, h})
	}
	if h, ok := e.(ObstacleDetected); ok {
		r.obstacleDetected = append(r.obstacleDetected, obstacleDetectedEntry{name, h})
	}
	if h, ok := e.(RepairProposed); ok {
		r.repairProposed = append(r.repairProposed, repairProposedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Run event emitters
// ──────────────────────────────────────────────────

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, tr *run.TestRun) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, tr); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitRunFinished notifies all extensions that implement RunFinished.
func (r *Registry) EmitRunFinished(ctx context.Context, tr *run.TestRun, elapsed time.Duration) {
	for _, e := range r.runFinished {
		if err := e.hook.OnRunFinished(ctx, tr, elapsed); err != nil {
			r.logHookError("OnRunFinished", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Step event emitters
// ──────────────────────────────────────────────────

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, tr *run.TestRun, x *step.ExecutedStep) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, tr, x); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, tr *run.TestRun, x *step.ExecutedStep, stepErr error) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, tr, x, stepErr); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitStepRetrying notifies all extensions that implement StepRetrying.
func (r *Registry) EmitStepRetrying(ctx context.Context, tr *run.TestRun, s *step.ActionStep, attempt int) {
	for _, e := range r.stepRetrying {
		if err := e.hook.OnStepRetrying(ctx, tr, s, attempt); err != nil {
			r.logHookError("OnStepRetrying", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Agent event emitters
// ──────────────────────────────────────────────────

// EmitObstacleDetected notifies all extensions that implement ObstacleDetected.
func (r *Registry) EmitObstacleDetected(ctx context.Context, tr *run.TestRun, d *obstacle.Detection) {
	for _, e := range r.obstacleDetected {
		if err := e.hook.OnObstacleDetected(ctx, tr, d); err != nil {
			r.logHookError("OnObstacleDetected", e.name, err)
		}
	}
}

// EmitRepairProposed notifies all extensions that implement RepairProposed.
func (r *Registry) EmitRepairProposed(ctx context.Context, tr *run.TestRun, rep *healer.Repair) {
	for _, e := range r.repairProposed {
		if err := e.hook.OnRepairProposed(ctx, tr, rep); err != nil {
			r.logHookError("OnRepairProposed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the run.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
