// Package healer diagnoses failed steps and proposes bounded repair
// sequences. Diagnosis looks at hard evidence first — network and
// console diagnostics captured during the failure — before asking the
// model for repairs, and deterministic post-processing keeps the model
// from proposing repairs the evidence contradicts.
package healer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// maxRepairSteps bounds one repair sequence. Longer sequences are a
// sign the model is re-planning, which is the planner's job.
const maxRepairSteps = 2

// RootCause classifies where a failure originated.
type RootCause string

const (
	RootCauseFrontend RootCause = "FRONTEND"
	RootCauseBackend  RootCause = "BACKEND"
	RootCauseNetwork  RootCause = "NETWORK"
	RootCauseAuth     RootCause = "AUTH"
	RootCauseUnknown  RootCause = "UNKNOWN"
)

func validRootCause(rc RootCause) bool {
	switch rc {
	case RootCauseFrontend, RootCauseBackend, RootCauseNetwork, RootCauseAuth, RootCauseUnknown:
		return true
	}
	return false
}

// Context is the evidence bundle for one failed step.
type Context struct {
	Run        *run.TestRun
	FailedStep *step.ActionStep
	ErrMsg     string

	Network []bridge.NetworkEvent
	Console []bridge.ConsoleEntry
	A11y    []bridge.A11yWarning

	// History is the recent executed-step window, oldest first.
	History []*step.ExecutedStep
}

// Repair is the healer's verdict: a root cause, an optional developer
// hint, and at most two repair steps. An empty step list means the
// failure is not worth retrying.
type Repair struct {
	Steps      []*step.ActionStep
	RootCause  RootCause
	Suggestion string
}

// Healer produces repairs for failed steps.
type Healer struct {
	invoker ai.Invoker
	logger  *slog.Logger
}

// New creates a Healer.
func New(invoker ai.Invoker, logger *slog.Logger) *Healer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Healer{invoker: invoker, logger: logger}
}

// repairStep is the model's wire representation of one repair action.
type repairStep struct {
	Action   string `json:"action"`
	Target   string `json:"target,omitempty"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	WaitMS   int    `json:"wait_ms,omitempty"`
}

type repairPayload struct {
	RootCause  string       `json:"root_cause"`
	Suggestion string       `json:"suggestion,omitempty"`
	Repairs    []repairStep `json:"repairs"`
}

const healSystem = `You diagnose failed browser test steps.
Respond with a JSON object {"root_cause":...,"suggestion":...,"repairs":[{"action":...,"target":...,"selector":...,"value":...,"wait_ms":...}]}.
Root causes: FRONTEND, BACKEND, NETWORK, AUTH, UNKNOWN.
Propose at most 2 repair steps using actions: navigate, click, type, wait, verify.
An empty repairs list means the failure is not recoverable by retrying.`

// Heal diagnoses the failure and proposes a repair. Server-side
// evidence overrides the model: when the diagnostics contain a 5xx
// response the root cause is forced to BACKEND and selector-swap
// repairs are dropped, since no amount of element hunting fixes a
// broken backend — waiting and retrying the original step might.
// A model response that stays malformed degrades to an empty repair
// rather than failing the run.
func (h *Healer) Heal(ctx context.Context, hc Context) (*Repair, error) {
	serverFault := hasServerError(hc.Network)

	payload, err := ai.Call[repairPayload](ctx, h.invoker, ai.Request{
		System:      healSystem,
		User:        h.userPrompt(hc, serverFault),
		Temperature: 0.2,
	})
	if err != nil {
		if errors.Is(err, pilot.ErrMalformedPayload) {
			h.logger.Warn("healer output unusable, giving up on step",
				slog.String("run_id", hc.Run.ID.String()),
				slog.String("step_id", hc.FailedStep.ID.String()),
			)
			return &Repair{RootCause: RootCauseUnknown}, nil
		}
		return nil, fmt.Errorf("heal step %s: %w", hc.FailedStep.ID, err)
	}

	repair := &Repair{
		RootCause:  RootCause(strings.ToUpper(strings.TrimSpace(payload.RootCause))),
		Suggestion: payload.Suggestion,
	}
	if !validRootCause(repair.RootCause) {
		repair.RootCause = RootCauseUnknown
	}
	if serverFault {
		repair.RootCause = RootCauseBackend
	}

	rootID := hc.FailedStep.RootID()
	for _, rs := range payload.Repairs {
		if len(repair.Steps) == maxRepairSteps {
			break
		}
		action := step.Action(strings.ToLower(strings.TrimSpace(rs.Action)))
		if !action.Valid() {
			continue
		}
		// Against a failing backend a new selector is a wrong answer.
		if serverFault && action.NeedsSelector() && rs.Selector != "" && rs.Selector != hc.FailedStep.Selector {
			continue
		}

		s := step.New(action, rs.Target)
		s.Selector = rs.Selector
		s.Value = rs.Value
		s.Origin = step.OriginHealer
		if rs.WaitMS > 0 {
			s = s.WithParam(step.ParamTimeoutMS, strconv.Itoa(rs.WaitMS))
		}
		s = s.WithParam(step.ParamRetryOf, rootID.String())
		repair.Steps = append(repair.Steps, s)
	}

	if serverFault && len(repair.Steps) > 0 && repair.Steps[0].Action != step.ActionWait {
		// Give the backend room to recover before the retry.
		wait := step.New(step.ActionWait, "backend recovery")
		wait.Origin = step.OriginHealer
		wait = wait.WithParam(step.ParamRetryOf, rootID.String())
		repair.Steps = append([]*step.ActionStep{wait}, repair.Steps...)
		if len(repair.Steps) > maxRepairSteps {
			repair.Steps = repair.Steps[:maxRepairSteps]
		}
	}

	return repair, nil
}

func (h *Healer) userPrompt(hc Context, serverFault bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed step: %s %q", hc.FailedStep.Action, hc.FailedStep.Target)
	if hc.FailedStep.Selector != "" {
		fmt.Fprintf(&b, " (selector %s)", hc.FailedStep.Selector)
	}
	fmt.Fprintf(&b, "\nError: %s\n", hc.ErrMsg)

	if len(hc.Network) > 0 {
		b.WriteString("\nNetwork failures during the step:\n")
		for _, ev := range hc.Network {
			fmt.Fprintf(&b, "- %s %s -> %d\n", ev.Method, ev.URL, ev.Status)
		}
	}
	if serverFault {
		b.WriteString("\nA server-side (5xx) response was observed. The backend is at fault.\n")
	}

	if msgs := dedupeConsole(hc.Console); len(msgs) > 0 {
		b.WriteString("\nConsole errors:\n")
		for _, m := range msgs {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if len(hc.History) > 0 {
		b.WriteString("\nRecent steps:\n")
		for _, x := range hc.History {
			fmt.Fprintf(&b, "- %s %q: %s\n", x.Step.Action, x.Step.Target, x.Status)
		}
	}
	return b.String()
}

// hasServerError reports whether any captured response was a 5xx.
func hasServerError(events []bridge.NetworkEvent) bool {
	for _, ev := range events {
		if ev.ServerError() {
			return true
		}
	}
	return false
}

// consoleBudget caps how many console errors go into the prompt.
const consoleBudget = 5

// dedupeConsole collapses repeated console errors to one line each and
// drops known noise that never explains a step failure.
func dedupeConsole(entries []bridge.ConsoleEntry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range entries {
		if !e.IsError() {
			continue
		}
		msg := strings.TrimSpace(e.Text)
		if msg == "" || isConsoleNoise(msg) {
			continue
		}
		sig := signature(msg)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, msg)
		if len(out) == consoleBudget {
			break
		}
	}
	return out
}

// signature normalizes a console message so the same error logged from
// different URLs or line numbers dedupes to one entry.
func signature(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return strings.ToLower(msg)
}

func isConsoleNoise(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range []string{"favicon.ico", "third-party cookie", "devtools"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
