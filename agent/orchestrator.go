// Package agent contains the run orchestrator: the state machine that
// drives one test run from pending to a terminal state. It consumes
// the action queue one step at a time, checks for obstacles before
// each action, routes failures through the healer under a bounded
// retry budget, and publishes exactly one completion event.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/backoff"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/driver"
	"github.com/probelab/pilot/event"
	"github.com/probelab/pilot/ext"
	"github.com/probelab/pilot/healer"
	"github.com/probelab/pilot/middleware"
	"github.com/probelab/pilot/obstacle"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/planner"
	"github.com/probelab/pilot/queue"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// Failure reason labels recorded on terminally failed runs.
const (
	ReasonSession        = "BROWSER_SESSION"
	ReasonPlanGeneration = "PLAN_GENERATION"
	ReasonStepFailed     = "STEP_FAILED"
)

// Deps bundles the orchestrator's collaborators. All fields are
// required unless noted.
type Deps struct {
	Runs     run.Store
	Queue    *queue.ActionQueue
	History  *queue.History
	Planner  *planner.Planner
	Healer   *healer.Healer
	Detector *obstacle.Detector
	Driver   *driver.Driver
	Dialer   bridge.Dialer
	Personas *persona.Registry
	Bus      *event.Bus
	Exts     *ext.Registry
	Chain    middleware.Middleware
	Pacing   backoff.Strategy // optional; DefaultStrategy when nil
	Reporter *Reporter        // optional; no summaries when nil
	Config   pilot.Config
	Logger   *slog.Logger
}

// Orchestrator executes runs. One Execute call owns one run from start
// to terminal state; the worker pool provides the goroutine and the
// wall-clock budget through ctx.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pacing == nil {
		deps.Pacing = backoff.DefaultStrategy()
	}
	return &Orchestrator{deps: deps, logger: deps.Logger}
}

// Execute drives r to a terminal state. It always finishes the run:
// every exit path persists a terminal status, back-fills the executed
// log, and publishes the completion event.
func (o *Orchestrator) Execute(ctx context.Context, r *run.TestRun) error {
	started := time.Now()

	if err := r.Transition(run.StatusRunning); err != nil {
		return fmt.Errorf("start run %s: %w", r.ID, err)
	}
	if err := o.deps.Runs.UpdateRun(ctx, r); err != nil {
		return fmt.Errorf("persist running state for %s: %w", r.ID, err)
	}
	o.deps.Exts.EmitRunStarted(ctx, r)

	// Collaborators outside the step middleware chain (dialer, planner,
	// detector, healer) can panic too; the run must still reach a
	// terminal record and its completion event.
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("run panicked",
				slog.String("run_id", r.ID.String()),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			o.finish(r, run.StatusFailed, fmt.Sprintf("panic: %v", p), started)
		}
	}()

	status, reason := o.execute(ctx, r)
	o.finish(r, status, reason, started)
	return nil
}

// execute runs the step loop and returns the terminal status to apply.
func (o *Orchestrator) execute(ctx context.Context, r *run.TestRun) (run.Status, string) {
	session, err := o.deps.Dialer.NewSession(ctx)
	if err != nil {
		return run.StatusFailed, fmt.Sprintf("%s: %v", ReasonSession, err)
	}
	defer session.Close()

	def, err := o.deps.Personas.Resolve(ctx, r.Persona)
	if err != nil {
		return run.StatusFailed, fmt.Sprintf("persona %q: %v", r.Persona, err)
	}

	// The opening navigation is a real step: recorded, scanned, and
	// healable like anything the planner produces.
	nav := step.New(step.ActionNavigate, r.TargetURL)
	o.deps.Queue.Push(r.ID, nav)
	planned := false

	retries := make(map[string]int)

	// First goal-critical terminal failure. Execution continues
	// best-effort; the verdict is decided at queue exhaustion.
	var criticalFailure string

	for {
		// Cancellation and the run budget are honored at step
		// boundaries; an in-flight browser call finishes first.
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return run.StatusTimeout, "run exceeded its wall-clock budget"
			}
			return run.StatusCancelled, ""
		}

		if o.deps.Queue.IsEmpty(r.ID) {
			if planned {
				if criticalFailure != "" {
					return run.StatusFailed, criticalFailure
				}
				return run.StatusCompleted, ""
			}
			// Initial navigation done: plan against the loaded page.
			status, reason, ok := o.plan(ctx, r, session, def)
			if !ok {
				return status, reason
			}
			planned = true
			continue
		}

		o.checkObstacle(ctx, r, session)

		s, ok := o.deps.Queue.Pop(r.ID)
		if !ok {
			continue
		}
		attempt := retries[s.RootID().String()]

		executed := o.executeStep(ctx, session, r, s, def, attempt)
		o.deps.History.Record(r.ID, executed)
		o.advance(ctx, r)

		if executed.Status == step.StatusSuccess {
			o.deps.Exts.EmitStepCompleted(ctx, r, executed)
			continue
		}

		status, reason, done := o.handleFailure(ctx, r, s, executed, retries)
		if done {
			return status, reason
		}
		if reason != "" && criticalFailure == "" {
			criticalFailure = reason
		}
	}
}

// plan snapshots the loaded page and seeds the queue with the initial
// plan. Plan generation failure is fail-fast: there is nothing to
// execute and nothing to heal.
func (o *Orchestrator) plan(ctx context.Context, r *run.TestRun, session bridge.Session, def *persona.Definition) (run.Status, string, bool) {
	// The opening navigation itself may have failed terminally.
	if last, ok := o.deps.History.Last(r.ID); ok && last.Status == step.StatusFailed {
		return run.StatusFailed, fmt.Sprintf("%s: %s", ReasonStepFailed, last.Error), false
	}

	snap, err := session.Snapshot(ctx)
	if err != nil {
		return run.StatusFailed, fmt.Sprintf("%s: snapshot: %v", ReasonPlanGeneration, err), false
	}
	steps, err := o.deps.Planner.Plan(ctx, r.Goals, snap, def)
	if err != nil {
		return run.StatusFailed, fmt.Sprintf("%s: %v", ReasonPlanGeneration, err), false
	}

	r.PlannedSteps = len(steps) + 1 // include the opening navigation
	o.deps.Queue.PushAll(r.ID, steps)
	o.logger.Info("run planned",
		slog.String("run_id", r.ID.String()),
		slog.Int("steps", len(steps)),
	)
	return "", "", true
}

// checkObstacle probes the page for a blocking overlay and, when one
// is actionable, injects its dismissal ahead of the pending step.
// Detection trouble never stalls the run.
func (o *Orchestrator) checkObstacle(ctx context.Context, r *run.TestRun, session bridge.Session) {
	snap, err := session.Snapshot(ctx)
	if err != nil {
		o.logger.Debug("obstacle snapshot failed", slog.String("error", err.Error()))
		return
	}
	det, err := o.deps.Detector.Detect(ctx, snap)
	if err != nil || !det.Present {
		return
	}

	o.deps.Exts.EmitObstacleDetected(ctx, r, det)
	o.deps.Queue.PushFront(r.ID, det.DismissStep())
	o.logger.Info("obstacle queued for dismissal",
		slog.String("run_id", r.ID.String()),
		slog.String("type", string(det.Type)),
	)
}

// handleFailure routes a failed step through the healer. It returns
// done=true with a terminal status only when the run context has
// died; a terminal step failure comes back as a non-empty reason and
// the run continues best-effort.
func (o *Orchestrator) handleFailure(ctx context.Context, r *run.TestRun, s *step.ActionStep, executed *step.ExecutedStep, retries map[string]int) (run.Status, string, bool) {
	// A failure observed after the run context died is an artifact of
	// cancellation, not something to heal.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return run.StatusTimeout, "run exceeded its wall-clock budget", true
		}
		return run.StatusCancelled, "", true
	}

	rootKey := s.RootID().String()
	attempt := retries[rootKey]

	// The limit bounds total execution attempts for the logical step:
	// limit 3 means the original try plus at most two repairs.
	if attempt+1 >= o.deps.Config.StepRetryLimit {
		return "", o.terminalStepFailure(ctx, r, s, executed, "repair budget exhausted"), false
	}

	repair, err := o.deps.Healer.Heal(ctx, healer.Context{
		Run:        r,
		FailedStep: s,
		ErrMsg:     executed.Error,
		Network:    executed.NetworkErrors,
		Console:    executed.ConsoleErrors,
		A11y:       executed.A11yWarnings,
		History:    o.deps.History.Recent(r.ID, o.deps.Config.HistoryWindow),
	})
	if err != nil {
		o.logger.Warn("healer unavailable",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
		return "", o.terminalStepFailure(ctx, r, s, executed, "healer unavailable"), false
	}

	executed.Suggestion = repair.Suggestion

	if len(repair.Steps) == 0 {
		return "", o.terminalStepFailure(ctx, r, s, executed,
			fmt.Sprintf("no repair for %s failure", repair.RootCause)), false
	}

	retries[rootKey] = attempt + 1
	o.deps.Exts.EmitRepairProposed(ctx, r, repair)
	for _, rs := range repair.Steps {
		o.deps.Exts.EmitStepRetrying(ctx, r, rs, attempt+1)
	}

	o.pause(ctx, attempt+1)
	o.deps.Queue.PushFrontAll(r.ID, repair.Steps)
	return "", "", false
}

// terminalStepFailure records a step that exhausted its repair budget.
// It returns the run-level failure reason for goal-critical actions
// and "" for observational ones; either way the loop keeps going.
func (o *Orchestrator) terminalStepFailure(ctx context.Context, r *run.TestRun, s *step.ActionStep, executed *step.ExecutedStep, why string) string {
	o.deps.Exts.EmitStepFailed(ctx, r, executed, errors.New(executed.Error))

	if !GoalCritical(s.Action) {
		o.logger.Warn("observational step failed, continuing",
			slog.String("run_id", r.ID.String()),
			slog.String("action", string(s.Action)),
		)
		return ""
	}

	o.logger.Warn("goal-critical step failed terminally",
		slog.String("run_id", r.ID.String()),
		slog.String("action", string(s.Action)),
		slog.String("target", s.Target),
	)
	reason := fmt.Sprintf("%s: %s %q: %s (%s)", ReasonStepFailed, s.Action, s.Target, executed.Error, why)
	if executed.Suggestion != "" {
		reason += "; suggestion: " + executed.Suggestion
	}
	return reason
}

// advance recomputes progress from the executed log and pending queue
// and persists it best-effort.
func (o *Orchestrator) advance(ctx context.Context, r *run.TestRun) {
	executed := o.deps.History.Size(r.ID)
	total := executed + o.deps.Queue.Size(r.ID)
	r.AdvanceProgress(executed, total)
	if err := o.deps.Runs.UpdateRun(ctx, r); err != nil {
		o.logger.Warn("progress not persisted",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// pause sleeps the repair backoff, bailing early on cancellation.
func (o *Orchestrator) pause(ctx context.Context, attempt int) {
	d := o.deps.Pacing.Delay(attempt)
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// finish applies the terminal status, back-fills the executed log, and
// publishes the completion event. It never gives up: persistence and
// publication run on a fresh context so a cancelled run still gets its
// terminal record.
func (o *Orchestrator) finish(r *run.TestRun, status run.Status, reason string, started time.Time) {
	// The run context may be dead; finalization gets its own budget.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r.Executed = o.deps.History.All(r.ID)
	r.FailureReason = reason
	r.AdvanceProgress(len(r.Executed), len(r.Executed)+o.deps.Queue.Size(r.ID))
	if status == run.StatusCompleted {
		r.Progress = 100
	}

	if err := r.Transition(status); err != nil {
		o.logger.Error("illegal terminal transition",
			slog.String("run_id", r.ID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
	if err := o.deps.Runs.UpdateRun(ctx, r); err != nil {
		o.logger.Error("terminal state not persisted",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if err := o.deps.Bus.Publish(ctx, event.NewCompletion(r)); err != nil {
		o.logger.Error("completion event not published",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	o.deps.Exts.EmitRunFinished(ctx, r, time.Since(started))

	o.deps.Queue.Clear(r.ID)
	o.deps.History.Clear(r.ID)

	if o.deps.Reporter != nil {
		// Summaries are post-terminal back-fill; they must not delay
		// slot release.
		go o.deps.Reporter.Summarize(r)
	}

	o.logger.Info("run finished",
		slog.String("run_id", r.ID.String()),
		slog.String("status", string(r.Status)),
		slog.Int("steps", len(r.Executed)),
		slog.Duration("elapsed", time.Since(started)),
	)
}

// GoalCritical reports whether a failed action should fail the whole
// run. Observational actions degrade the report, not the verdict.
func GoalCritical(a step.Action) bool {
	switch a {
	case step.ActionScreenshot, step.ActionWait, step.ActionPerformance:
		return false
	}
	return true
}
