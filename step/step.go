// Package step defines the atomic units of a test run: the planned
// ActionStep and the ExecutedStep record of its outcome.
package step

import (
	"strconv"
	"time"

	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/id"
)

// Action is the browser action a step performs.
type Action string

const (
	ActionNavigate    Action = "navigate"
	ActionClick       Action = "click"
	ActionType        Action = "type"
	ActionWait        Action = "wait"
	ActionScreenshot  Action = "screenshot"
	ActionPerformance Action = "measure_performance"
	ActionVerify      Action = "verify"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionType, ActionWait,
		ActionScreenshot, ActionPerformance, ActionVerify:
		return true
	}
	return false
}

// NeedsSelector reports whether the action targets a DOM element and
// therefore requires selector resolution before execution.
func (a Action) NeedsSelector() bool {
	switch a {
	case ActionClick, ActionType, ActionVerify:
		return true
	}
	return false
}

// Origin records which component produced a step.
type Origin string

const (
	OriginPlanner  Origin = "planner"
	OriginHealer   Origin = "healer"
	OriginObstacle Origin = "obstacle"
)

// Param keys with defined meaning.
const (
	// ParamTimeoutMS overrides the per-step execution deadline.
	ParamTimeoutMS = "timeout-ms"
	// ParamRetryOf links a repair step to the logical step it retries.
	ParamRetryOf = "retry_of"
)

// ActionStep is one atomic planned action. It is an immutable value
// object: created by the planner, healer, or obstacle detector, and
// consumed exactly once by the executor.
type ActionStep struct {
	ID       id.StepID         `json:"id"`
	Action   Action            `json:"action"`
	Target   string            `json:"target,omitempty"`
	Selector string            `json:"selector,omitempty"`
	Value    string            `json:"value,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Origin   Origin            `json:"origin,omitempty"`
}

// New creates an ActionStep with a fresh ID.
func New(action Action, target string) *ActionStep {
	return &ActionStep{
		ID:     id.NewStepID(),
		Action: action,
		Target: target,
		Origin: OriginPlanner,
	}
}

// WithParam returns a copy of the step with one param set.
func (s *ActionStep) WithParam(key, value string) *ActionStep {
	cp := *s
	cp.Params = make(map[string]string, len(s.Params)+1)
	for k, v := range s.Params {
		cp.Params[k] = v
	}
	cp.Params[key] = value
	return &cp
}

// Timeout returns the step's timeout-ms param, or fallback if unset
// or unparseable.
func (s *ActionStep) Timeout(fallback time.Duration) time.Duration {
	raw, ok := s.Params[ParamTimeoutMS]
	if !ok {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// RootID returns the logical step this one retries, or the step's own
// ID when it is not a repair. Retry budgets are tracked per root.
func (s *ActionStep) RootID() id.StepID {
	raw, ok := s.Params[ParamRetryOf]
	if !ok {
		return s.ID
	}
	parsed, err := id.ParseStepID(raw)
	if err != nil {
		return s.ID
	}
	return parsed
}

// Status is the terminal outcome of one executed step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ExecutedStep wraps an ActionStep with its observed outcome. Records
// are append-only once written to the history log.
type ExecutedStep struct {
	ID           id.ExecID     `json:"id"`
	Step         ActionStep    `json:"step"`
	Status       Status        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration"`
	SelectorUsed string        `json:"selector_used,omitempty"`
	BeforeURL    string        `json:"before_url,omitempty"`
	AfterURL     string        `json:"after_url,omitempty"`
	Error        string        `json:"error,omitempty"`
	RetryCount   int           `json:"retry_count"`

	NetworkErrors []bridge.NetworkEvent `json:"network_errors,omitempty"`
	ConsoleErrors []bridge.ConsoleEntry `json:"console_errors,omitempty"`
	A11yWarnings  []bridge.A11yWarning  `json:"a11y_warnings,omitempty"`
	Performance   *bridge.Performance   `json:"performance,omitempty"`

	// Suggestion is the healer's free-text developer hint, if any.
	Suggestion string `json:"suggestion,omitempty"`
}

// NewExecuted starts an execution record for the given step.
func NewExecuted(s *ActionStep) *ExecutedStep {
	return &ExecutedStep{
		ID:        id.NewExecID(),
		Step:      *s,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the record with its outcome.
func (x *ExecutedStep) Finish(status Status, errMsg string) *ExecutedStep {
	x.Status = status
	x.Error = errMsg
	x.CompletedAt = time.Now().UTC()
	x.Duration = x.CompletedAt.Sub(x.StartedAt)
	return x
}
