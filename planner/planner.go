// Package planner turns run goals plus a page snapshot into a bounded
// sequence of executable steps.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/step"
)

// domBudget caps how much of the DOM snapshot goes into the prompt.
const domBudget = 8000

// Planner generates the initial step plan for a run.
type Planner struct {
	invoker  ai.Invoker
	maxSteps int
	logger   *slog.Logger
}

// New creates a Planner capped at maxSteps per plan.
func New(invoker ai.Invoker, maxSteps int, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{invoker: invoker, maxSteps: maxSteps, logger: logger}
}

// plannedStep is the model's wire representation of one step.
type plannedStep struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
}

// planPayload is the full model response.
type planPayload struct {
	Steps []plannedStep `json:"steps"`
}

// Plan produces an ordered step list for the goals against the given
// page. The plan is truncated at the configured maximum, invalid
// actions are dropped, and obstacle-handling steps are filtered out —
// overlay dismissal belongs to the obstacle detector at execution time,
// not to the plan.
func (p *Planner) Plan(ctx context.Context, goals []string, snap *bridge.Snapshot, def *persona.Definition) ([]*step.ActionStep, error) {
	req := ai.Request{
		System:      p.systemPrompt(def),
		User:        p.userPrompt(goals, snap),
		Temperature: def.Temperature,
	}

	payload, err := ai.Call[planPayload](ctx, p.invoker, req)
	if err != nil {
		if errors.Is(err, pilot.ErrMalformedPayload) {
			return nil, fmt.Errorf("plan for %q: %w", snap.URL, pilot.ErrPlanGeneration)
		}
		return nil, fmt.Errorf("plan for %q: %w", snap.URL, err)
	}

	steps := make([]*step.ActionStep, 0, len(payload.Steps))
	dropped := 0
	for _, ps := range payload.Steps {
		action := step.Action(strings.ToLower(strings.TrimSpace(ps.Action)))
		if !action.Valid() {
			dropped++
			continue
		}
		if isObstacleStep(ps) {
			dropped++
			continue
		}
		s := step.New(action, ps.Target)
		s.Value = ps.Value
		steps = append(steps, s)
	}

	if len(steps) == 0 {
		return nil, fmt.Errorf("model produced no usable steps: %w", pilot.ErrPlanGeneration)
	}
	if len(steps) > p.maxSteps {
		steps = steps[:p.maxSteps]
	}

	p.logger.Debug("plan generated",
		slog.Int("steps", len(steps)),
		slog.Int("dropped", dropped),
		slog.String("url", snap.URL),
	)
	return steps, nil
}

func (p *Planner) systemPrompt(def *persona.Definition) string {
	var b strings.Builder
	b.WriteString(def.SystemPrompt)
	b.WriteString("\n\nYou plan browser test steps. Respond with a JSON object " +
		`{"steps":[{"action":...,"target":...,"value":...}]}. ` +
		"Allowed actions: navigate, click, type, wait, screenshot, " +
		"measure_performance, verify. Describe targets in plain language " +
		"(e.g. \"the login button\"), never as CSS selectors. Do not plan " +
		"steps for cookie banners, consent dialogs, or other overlays; those " +
		"are handled separately.")
	return b.String()
}

func (p *Planner) userPrompt(goals []string, snap *bridge.Snapshot) string {
	var b strings.Builder
	b.WriteString("Goals:\n")
	for i, g := range goals {
		fmt.Fprintf(&b, "%d. %s\n", i+1, g)
	}
	fmt.Fprintf(&b, "\nCurrent page: %s (%s)\n", snap.Title, snap.URL)

	dom := snap.DOM
	if len(dom) > domBudget {
		dom = dom[:domBudget]
	}
	b.WriteString("\nPage content:\n")
	b.WriteString(dom)
	fmt.Fprintf(&b, "\n\nPlan at most %d steps.", p.maxSteps)
	return b.String()
}

// isObstacleStep reports whether a planned step targets overlay
// dismissal rather than the goal itself.
func isObstacleStep(ps plannedStep) bool {
	text := strings.ToLower(ps.Target + " " + ps.Value)
	for _, kw := range []string{"cookie", "consent", "gdpr", "accept all", "dismiss banner"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
