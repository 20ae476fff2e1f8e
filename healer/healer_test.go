package healer

import (
	"context"
	"errors"
	"testing"

	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

type scripted struct {
	responses []string
	calls     int
	lastUser  string
}

func (s *scripted) Complete(_ context.Context, req ai.Request) (string, error) {
	s.lastUser = req.User
	if s.calls >= len(s.responses) {
		return "", errors.New("script exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func failedClick() (*run.TestRun, *step.ActionStep) {
	r := run.New("org_a", "https://shop.example", []string{"checkout"})
	s := step.New(step.ActionClick, "the checkout button")
	s.Selector = "#checkout"
	return r, s
}

func heal(t *testing.T, inv *scripted, hc Context) *Repair {
	t.Helper()
	repair, err := New(inv, nil).Heal(context.Background(), hc)
	if err != nil {
		t.Fatalf("Heal: %v", err)
	}
	return repair
}

func TestHeal_FrontendRepair(t *testing.T) {
	r, s := failedClick()
	inv := &scripted{responses: []string{`{
		"root_cause":"FRONTEND",
		"suggestion":"The button id changed in the last deploy",
		"repairs":[{"action":"click","target":"the checkout button","selector":"#btn-checkout"}]
	}`}}

	repair := heal(t, inv, Context{Run: r, FailedStep: s, ErrMsg: "element not found"})
	if repair.RootCause != RootCauseFrontend {
		t.Fatalf("RootCause = %s, want FRONTEND", repair.RootCause)
	}
	if len(repair.Steps) != 1 {
		t.Fatalf("expected 1 repair step, got %d", len(repair.Steps))
	}
	got := repair.Steps[0]
	if got.Selector != "#btn-checkout" || got.Origin != step.OriginHealer {
		t.Fatalf("unexpected repair step: %+v", got)
	}
	if got.RootID() != s.ID {
		t.Fatal("repair must link back to the failed step's root")
	}
}

func TestHeal_ServerErrorForcesBackend(t *testing.T) {
	r, s := failedClick()
	// Model blames the frontend and proposes a new selector; the 5xx
	// evidence must override both.
	inv := &scripted{responses: []string{`{
		"root_cause":"FRONTEND",
		"repairs":[{"action":"click","target":"the checkout button","selector":"#other-button"}]
	}`}}

	repair := heal(t, inv, Context{
		Run:        r,
		FailedStep: s,
		ErrMsg:     "checkout failed",
		Network: []bridge.NetworkEvent{
			{Method: "POST", URL: "https://shop.example/api/checkout", Status: 503},
		},
	})
	if repair.RootCause != RootCauseBackend {
		t.Fatalf("RootCause = %s, want BACKEND", repair.RootCause)
	}
	for _, rs := range repair.Steps {
		if rs.Action.NeedsSelector() && rs.Selector != "" && rs.Selector != s.Selector {
			t.Fatalf("selector-swap repair survived a 5xx: %+v", rs)
		}
	}
}

func TestHeal_ServerErrorPrefersWaitAndRetry(t *testing.T) {
	r, s := failedClick()
	inv := &scripted{responses: []string{`{
		"root_cause":"BACKEND",
		"repairs":[{"action":"click","target":"the checkout button","selector":"#checkout"}]
	}`}}

	repair := heal(t, inv, Context{
		Run:        r,
		FailedStep: s,
		ErrMsg:     "checkout failed",
		Network: []bridge.NetworkEvent{
			{Method: "POST", URL: "https://shop.example/api/checkout", Status: 500},
		},
	})
	if len(repair.Steps) == 0 {
		t.Fatal("expected a repair sequence")
	}
	if repair.Steps[0].Action != step.ActionWait {
		t.Fatalf("first repair = %s, want wait before the retry", repair.Steps[0].Action)
	}
	if len(repair.Steps) > 2 {
		t.Fatalf("repair sequence exceeds bound: %d", len(repair.Steps))
	}
}

func TestHeal_CapsRepairSteps(t *testing.T) {
	r, s := failedClick()
	inv := &scripted{responses: []string{`{
		"root_cause":"FRONTEND",
		"repairs":[
			{"action":"wait","target":"a"},
			{"action":"click","target":"b"},
			{"action":"click","target":"c"},
			{"action":"click","target":"d"}
		]
	}`}}

	repair := heal(t, inv, Context{Run: r, FailedStep: s, ErrMsg: "flaky"})
	if len(repair.Steps) != 2 {
		t.Fatalf("expected cap at 2 steps, got %d", len(repair.Steps))
	}
}

func TestHeal_EmptyRepairMeansGiveUp(t *testing.T) {
	r, s := failedClick()
	inv := &scripted{responses: []string{`{"root_cause":"AUTH","suggestion":"session expired","repairs":[]}`}}

	repair := heal(t, inv, Context{Run: r, FailedStep: s, ErrMsg: "401"})
	if len(repair.Steps) != 0 {
		t.Fatalf("expected no repair steps, got %d", len(repair.Steps))
	}
	if repair.RootCause != RootCauseAuth {
		t.Fatalf("RootCause = %s, want AUTH", repair.RootCause)
	}
}

func TestHeal_MalformedDegradesToEmptyRepair(t *testing.T) {
	r, s := failedClick()
	inv := &scripted{responses: []string{"garbage", "more garbage"}}

	repair := heal(t, inv, Context{Run: r, FailedStep: s, ErrMsg: "boom"})
	if len(repair.Steps) != 0 || repair.RootCause != RootCauseUnknown {
		t.Fatalf("unexpected degraded repair: %+v", repair)
	}
}

func TestHeal_UnknownRootCauseNormalized(t *testing.T) {
	r, s := failedClick()
	inv := &scripted{responses: []string{`{"root_cause":"GREMLINS","repairs":[]}`}}

	repair := heal(t, inv, Context{Run: r, FailedStep: s, ErrMsg: "boom"})
	if repair.RootCause != RootCauseUnknown {
		t.Fatalf("RootCause = %s, want UNKNOWN", repair.RootCause)
	}
}

func TestDedupeConsole(t *testing.T) {
	entries := []bridge.ConsoleEntry{
		{Level: "error", Text: "TypeError: x is undefined\n  at app.js:10"},
		{Level: "error", Text: "TypeError: x is undefined\n  at app.js:99"},
		{Level: "error", Text: "Failed to load favicon.ico"},
		{Level: "warn", Text: "deprecation warning"},
		{Level: "error", Text: "Uncaught ReferenceError: y"},
	}
	got := dedupeConsole(entries)
	if len(got) != 2 {
		t.Fatalf("expected 2 deduped errors, got %d: %v", len(got), got)
	}
}
