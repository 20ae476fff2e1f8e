package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/middleware"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// executeStep runs one step through the middleware chain and returns
// its execution record. The record is always complete: failures are
// captured in Status/Error, never returned as a bare error.
func (o *Orchestrator) executeStep(ctx context.Context, session bridge.Session, r *run.TestRun, s *step.ActionStep, def *persona.Definition, attempt int) *step.ExecutedStep {
	executed := step.NewExecuted(s)
	executed.RetryCount = attempt
	if snap, err := session.Snapshot(ctx); err == nil {
		executed.BeforeURL = snap.URL
	}

	sc := &middleware.StepContext{Run: r, Step: s, Attempt: attempt}
	handler := func(ctx context.Context) error {
		return o.perform(ctx, session, r, s, executed)
	}

	var err error
	if o.deps.Chain != nil {
		err = o.deps.Chain(ctx, sc, handler)
	} else {
		err = handler(ctx)
	}

	// Diagnostics the endpoint streamed while the action ran belong to
	// this step; draining resets the scope for the next one.
	executed.NetworkErrors = append(executed.NetworkErrors, keepFailures(session.Network().Drain())...)
	executed.ConsoleErrors = append(executed.ConsoleErrors, keepErrors(session.Console().Drain())...)

	o.scanAccessibility(ctx, session, s, def, executed)

	if err != nil {
		executed.Finish(step.StatusFailed, err.Error())
		if s.Action.NeedsSelector() && executed.SelectorUsed != "" {
			// The selector resolved and verified but the action still
			// failed; that evidence belongs in the cache counters.
			o.deps.Driver.RecordOutcome(ctx, r.TenantID, s.Target, executed.BeforeURL, false)
		}
		return executed
	}
	return executed.Finish(step.StatusSuccess, "")
}

// perform dispatches the step's action to the browser session. It
// mutates executed in place with the selector used, the resulting URL,
// and any captured artifacts.
func (o *Orchestrator) perform(ctx context.Context, session bridge.Session, r *run.TestRun, s *step.ActionStep, executed *step.ExecutedStep) error {
	sel, err := o.resolveSelector(ctx, session, r, s, executed)
	if err != nil {
		return err
	}
	executed.SelectorUsed = sel

	switch s.Action {
	case step.ActionNavigate:
		res, err := session.Navigate(ctx, s.Target)
		return o.applyResult(executed, res, err)

	case step.ActionClick:
		res, err := session.Click(ctx, sel)
		return o.applyResult(executed, res, err)

	case step.ActionType:
		res, err := session.Fill(ctx, sel, s.Value)
		return o.applyResult(executed, res, err)

	case step.ActionWait:
		return o.wait(ctx, s)

	case step.ActionScreenshot:
		res, err := session.Screenshot(ctx, bridge.ScreenshotParams{FullPage: true})
		return o.applyResult(executed, res, err)

	case step.ActionPerformance:
		perf, err := session.MeasurePerformance(ctx)
		if err != nil {
			return fmt.Errorf("measure performance: %w", err)
		}
		executed.Performance = perf
		return nil

	case step.ActionVerify:
		res, err := session.Query(ctx, sel)
		if err != nil {
			return fmt.Errorf("verify %q: %w", s.Target, err)
		}
		if !res.Found || !res.Visible {
			return fmt.Errorf("expected %q to be visible, found=%v visible=%v", s.Target, res.Found, res.Visible)
		}
		return nil

	default:
		return fmt.Errorf("unsupported action %q", s.Action)
	}
}

// resolveSelector maps the step's target to a selector when the action
// needs one. Steps that arrive with a selector already attached — the
// obstacle detector's dismissals — skip resolution entirely.
func (o *Orchestrator) resolveSelector(ctx context.Context, session bridge.Session, r *run.TestRun, s *step.ActionStep, executed *step.ExecutedStep) (string, error) {
	if !s.Action.NeedsSelector() {
		return "", nil
	}
	if s.Selector != "" {
		return s.Selector, nil
	}

	snap, err := session.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot before resolving %q: %w", s.Target, err)
	}
	res, err := o.deps.Driver.Resolve(ctx, session, r.TenantID, s.Target, snap)
	if err != nil {
		return "", err
	}
	if res.FromCache {
		o.logger.Debug("selector served from cache",
			slog.String("run_id", r.ID.String()),
			slog.String("target", s.Target),
		)
	}
	return res.Selector, nil
}

// applyResult folds a bridge ActionResult into the execution record.
func (o *Orchestrator) applyResult(executed *step.ExecutedStep, res *bridge.ActionResult, err error) error {
	if err != nil {
		return err
	}
	executed.AfterURL = res.URL
	for _, e := range res.Network {
		if e.Failure() {
			executed.NetworkErrors = append(executed.NetworkErrors, e)
		}
	}
	for _, c := range res.Console {
		if c.IsError() {
			executed.ConsoleErrors = append(executed.ConsoleErrors, c)
		}
	}
	if !res.OK {
		if res.Error != "" {
			return fmt.Errorf("browser action failed: %s", res.Error)
		}
		return fmt.Errorf("browser action failed")
	}
	return nil
}

// wait sleeps the step's timeout-ms param. The param doubles as the
// step deadline, so a deadline expiry here means the wait elapsed;
// only cancellation aborts it.
func (o *Orchestrator) wait(ctx context.Context, s *step.ActionStep) error {
	d := s.Timeout(time.Second)
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil
		}
		return ctx.Err()
	}
}

// scanAccessibility audits the page after every navigation, and after
// every action for personas that request it.
func (o *Orchestrator) scanAccessibility(ctx context.Context, session bridge.Session, s *step.ActionStep, def *persona.Definition, executed *step.ExecutedStep) {
	if s.Action != step.ActionNavigate && (def == nil || !def.ScanEveryAction) {
		return
	}
	warnings, err := session.ScanAccessibility(ctx)
	if err != nil {
		o.logger.Debug("accessibility scan failed", slog.String("error", err.Error()))
		return
	}
	executed.A11yWarnings = append(executed.A11yWarnings, warnings...)
}

func keepFailures(events []bridge.NetworkEvent) []bridge.NetworkEvent {
	var out []bridge.NetworkEvent
	for _, e := range events {
		if e.Failure() {
			out = append(out, e)
		}
	}
	return out
}

func keepErrors(entries []bridge.ConsoleEntry) []bridge.ConsoleEntry {
	var out []bridge.ConsoleEntry
	for _, e := range entries {
		if e.IsError() {
			out = append(out, e)
		}
	}
	return out
}
