package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/ai"
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
	"github.com/probelab/pilot/selector"
	"github.com/probelab/pilot/step"
	"github.com/probelab/pilot/store/memory"
)

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

// scriptInvoker routes model calls by their system prompt and serves
// canned responses.
type scriptInvoker struct {
	mu sync.Mutex

	planJSON     string
	obstacleJSON []string // consumed in order; clear after exhaustion
	healJSON     string
	selectorJSON string

	calls map[string]int
}

func newScriptInvoker() *scriptInvoker {
	return &scriptInvoker{calls: make(map[string]int)}
}

func (s *scriptInvoker) Complete(_ context.Context, req ai.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(req.System, "plan browser test steps"):
		s.calls["plan"]++
		return s.planJSON, nil
	case strings.Contains(req.System, "detect overlays"):
		s.calls["obstacle"]++
		if len(s.obstacleJSON) > 0 {
			head := s.obstacleJSON[0]
			s.obstacleJSON = s.obstacleJSON[1:]
			return head, nil
		}
		return `{"overlays":[]}`, nil
	case strings.Contains(req.System, "diagnose failed"):
		s.calls["heal"]++
		return s.healJSON, nil
	case strings.Contains(req.System, "locate elements"):
		s.calls["locate"]++
		return s.selectorJSON, nil
	}
	return "", errors.New("unexpected model call: " + req.System)
}

func (s *scriptInvoker) callCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// fakeSession is a scripted browser session.
type fakeSession struct {
	mu      sync.Mutex
	snap    bridge.Snapshot
	network *bridge.NetworkSniffer
	console *bridge.ConsoleSpy

	visible    map[string]bool
	clickFails map[string]*bridge.ActionResult
	a11y       []bridge.A11yWarning

	navigations []string
	clicks      []string
	closed      bool
}

func newFakeSession(startURL string) *fakeSession {
	return &fakeSession{
		snap:       bridge.Snapshot{URL: startURL, Title: "start", DOM: "<html></html>"},
		network:    bridge.NewNetworkSniffer(),
		console:    bridge.NewConsoleSpy(),
		visible:    make(map[string]bool),
		clickFails: make(map[string]*bridge.ActionResult),
	}
}

func (f *fakeSession) Navigate(_ context.Context, url string) (*bridge.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	f.snap.URL = url
	return &bridge.ActionResult{OK: true, URL: url}, nil
}

func (f *fakeSession) Click(_ context.Context, sel string) (*bridge.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, sel)
	if res, ok := f.clickFails[sel]; ok {
		return res, nil
	}
	return &bridge.ActionResult{OK: true, URL: f.snap.URL}, nil
}

func (f *fakeSession) Fill(_ context.Context, _, _ string) (*bridge.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &bridge.ActionResult{OK: true, URL: f.snap.URL}, nil
}

func (f *fakeSession) Screenshot(_ context.Context, _ bridge.ScreenshotParams) (*bridge.ActionResult, error) {
	return &bridge.ActionResult{OK: true, Screenshot: []byte{1}}, nil
}

func (f *fakeSession) Snapshot(_ context.Context) (*bridge.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snap
	return &snap, nil
}

func (f *fakeSession) Query(_ context.Context, sel string) (*bridge.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.visible[sel]
	return &bridge.QueryResult{Found: ok, Visible: ok, Count: 1}, nil
}

func (f *fakeSession) ScanAccessibility(_ context.Context) ([]bridge.A11yWarning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.a11y, nil
}

func (f *fakeSession) MeasurePerformance(_ context.Context) (*bridge.Performance, error) {
	return &bridge.Performance{LoadMS: 120}, nil
}

func (f *fakeSession) Network() *bridge.NetworkSniffer { return f.network }
func (f *fakeSession) Console() *bridge.ConsoleSpy     { return f.console }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeDialer struct {
	session bridge.Session
	err     error
}

func (d *fakeDialer) NewSession(_ context.Context) (bridge.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

// recorder captures extension notifications for assertions.
type recorder struct {
	mu        sync.Mutex
	started   int
	finished  int
	obstacles []*obstacle.Detection
	repairs   []*healer.Repair
	retrying  int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnRunStarted(_ context.Context, _ *run.TestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *recorder) OnRunFinished(_ context.Context, _ *run.TestRun, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	return nil
}

func (r *recorder) OnObstacleDetected(_ context.Context, _ *run.TestRun, d *obstacle.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obstacles = append(r.obstacles, d)
	return nil
}

func (r *recorder) OnRepairProposed(_ context.Context, _ *run.TestRun, rep *healer.Repair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repairs = append(r.repairs, rep)
	return nil
}

func (r *recorder) OnStepRetrying(_ context.Context, _ *run.TestRun, _ *step.ActionStep, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retrying++
	return nil
}

// ──────────────────────────────────────────────────
// Harness
// ──────────────────────────────────────────────────

type harness struct {
	orch  *Orchestrator
	store *memory.Store
	inv   *scriptInvoker
	sess  *fakeSession
	rec   *recorder
	cache *selector.Cache
	cfg   pilot.Config
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(sink{}, nil))
}

type sink struct{}

func (sink) Write(p []byte) (int, error) { return len(p), nil }

func newHarness(t *testing.T, inv *scriptInvoker, sess *fakeSession, cfg pilot.Config) *harness {
	t.Helper()
	logger := discardLogger()
	mem := memory.New()
	cache := selector.NewCache(mem, logger)
	rec := &recorder{}
	exts := ext.NewRegistry(logger)
	exts.Register(rec)

	deps := Deps{
		Runs:     mem,
		Queue:    queue.NewActionQueue(),
		History:  queue.NewHistory(),
		Planner:  planner.New(inv, cfg.PlannerMaxSteps, logger),
		Healer:   healer.New(inv, logger),
		Detector: obstacle.NewDetector(inv, logger),
		Driver:   driver.New(cache, inv, logger),
		Dialer:   &fakeDialer{session: sess},
		Personas: persona.NewRegistry(mem),
		Bus:      event.NewBus(mem, logger),
		Exts:     exts,
		Chain:    middleware.Chain(middleware.Recover(logger), middleware.Timeout(cfg.StepTimeout)),
		Pacing:   backoff.NewConstant(0),
		Config:   cfg,
		Logger:   logger,
	}
	return &harness{
		orch:  NewOrchestrator(deps),
		store: mem,
		inv:   inv,
		sess:  sess,
		rec:   rec,
		cache: cache,
		cfg:   cfg,
	}
}

func (h *harness) newRun(t *testing.T, url string, goals ...string) *run.TestRun {
	t.Helper()
	r := run.New("org_test", url, goals)
	if err := h.store.CreateRun(context.Background(), r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return r
}

func (h *harness) seedSelector(t *testing.T, goal, url, sel string) {
	t.Helper()
	if err := h.cache.Put(context.Background(), "org_test", goal, url, sel, ""); err != nil {
		t.Fatalf("seed selector: %v", err)
	}
	h.sess.mu.Lock()
	h.sess.visible[sel] = true
	h.sess.mu.Unlock()
}

func testConfig() pilot.Config {
	cfg := pilot.DefaultConfig()
	// Two total attempts per logical step: the original plus one repair.
	cfg.StepRetryLimit = 2
	cfg.StepTimeout = 2 * time.Second
	return cfg
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestExecute_HappyPathWithCachedSelectors(t *testing.T) {
	const pageURL = "https://app.example.com/login"

	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[
		{"action":"click","target":"the login button"},
		{"action":"verify","target":"the dashboard heading"}]}`

	sess := newFakeSession("about:blank")
	sess.a11y = []bridge.A11yWarning{{Rule: "image-alt", Severity: "serious", Message: "missing alt"}}

	h := newHarness(t, inv, sess, testConfig())
	h.seedSelector(t, "the login button", pageURL, "#login")
	h.seedSelector(t, "the dashboard heading", pageURL, "#dashboard")

	r := h.newRun(t, pageURL, "Log in and reach the dashboard")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", r.Status, r.FailureReason)
	}
	if r.Progress != 100 {
		t.Fatalf("progress = %d, want 100", r.Progress)
	}
	if len(r.Executed) != 3 {
		t.Fatalf("executed %d steps, want 3 (navigate, click, verify)", len(r.Executed))
	}
	if r.Executed[0].Step.Action != step.ActionNavigate {
		t.Fatalf("first step = %s, want navigate", r.Executed[0].Step.Action)
	}
	if len(r.Executed[0].A11yWarnings) != 1 {
		t.Fatal("navigate step should carry the accessibility warning")
	}
	if got := r.Executed[1].SelectorUsed; got != "#login" {
		t.Fatalf("click used %q, want cached #login", got)
	}

	// Both selectors verified from cache; the model never located one.
	if n := inv.callCount("locate"); n != 0 {
		t.Fatalf("locate calls = %d, want 0 (cache fast path)", n)
	}

	// Exactly one completion event.
	e, err := h.store.GetEvent(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if e.Status != run.StatusCompleted {
		t.Fatalf("event status = %s, want completed", e.Status)
	}
	if h.rec.started != 1 || h.rec.finished != 1 {
		t.Fatalf("lifecycle hooks = %d/%d, want 1/1", h.rec.started, h.rec.finished)
	}
	if !sess.closed {
		t.Fatal("session should be closed")
	}
}

func TestExecute_ObstacleDismissedBeforePlannedStep(t *testing.T) {
	const pageURL = "https://shop.example.com"

	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[{"action":"click","target":"the add to cart button"}]}`
	// Clear before navigate and before planning; the banner shows up
	// ahead of the first planned click, then the page is clean.
	inv.obstacleJSON = []string{
		`{"overlays":[]}`,
		`{"overlays":[{"type":"cookie_consent","dismiss_selector":"#cookie-accept","confidence":"high","position":"center"}]}`,
	}

	sess := newFakeSession("about:blank")
	h := newHarness(t, inv, sess, testConfig())
	h.seedSelector(t, "the add to cart button", pageURL, "#add-to-cart")
	sess.mu.Lock()
	sess.visible["#cookie-accept"] = true
	sess.mu.Unlock()

	r := h.newRun(t, pageURL, "Add an item to the cart")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", r.Status, r.FailureReason)
	}

	// navigate, dismiss, click — the dismissal runs before the planned
	// click it was blocking.
	if len(r.Executed) != 3 {
		t.Fatalf("executed %d steps, want 3", len(r.Executed))
	}
	dismiss := r.Executed[1]
	if dismiss.Step.Origin != step.OriginObstacle {
		t.Fatalf("second step origin = %s, want obstacle", dismiss.Step.Origin)
	}
	if dismiss.SelectorUsed != "#cookie-accept" {
		t.Fatalf("dismiss used %q, want #cookie-accept", dismiss.SelectorUsed)
	}
	if r.Executed[2].SelectorUsed != "#add-to-cart" {
		t.Fatalf("planned click used %q, want #add-to-cart", r.Executed[2].SelectorUsed)
	}

	if len(h.rec.obstacles) != 1 || h.rec.obstacles[0].Type != obstacle.TypeCookieConsent {
		t.Fatalf("obstacle hook saw %v, want one cookie_consent", h.rec.obstacles)
	}
}

func TestExecute_BackendFailureRetriesThenFails(t *testing.T) {
	const pageURL = "https://shop.example.com/checkout"

	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[{"action":"click","target":"the checkout button"}]}`
	inv.healJSON = `{"root_cause":"FRONTEND","suggestion":"Check the /api/checkout endpoint",
		"repairs":[{"action":"wait","wait_ms":5},{"action":"click","target":"the checkout button"}]}`

	sess := newFakeSession("about:blank")
	sess.clickFails["#checkout"] = &bridge.ActionResult{
		OK:    false,
		Error: "click did not settle",
		Network: []bridge.NetworkEvent{
			{Method: "POST", URL: pageURL + "/api", Status: 503, At: time.Now()},
		},
	}

	h := newHarness(t, inv, sess, testConfig())
	h.seedSelector(t, "the checkout button", pageURL, "#checkout")

	r := h.newRun(t, pageURL, "Complete checkout")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if !strings.Contains(r.FailureReason, ReasonStepFailed) {
		t.Fatalf("failure reason %q should carry %s", r.FailureReason, ReasonStepFailed)
	}
	if !strings.Contains(r.FailureReason, "checkout") {
		t.Fatalf("failure reason %q should name the step", r.FailureReason)
	}

	// One repair round: the budget is two total attempts per logical
	// step, the healed click shares the original's budget, and its
	// failure is terminal.
	if n := inv.callCount("heal"); n != 1 {
		t.Fatalf("heal calls = %d, want 1", n)
	}
	if len(h.rec.repairs) != 1 {
		t.Fatalf("repairs proposed = %d, want 1", len(h.rec.repairs))
	}
	rep := h.rec.repairs[0]
	// 5xx evidence overrides the model's FRONTEND diagnosis.
	if rep.RootCause != healer.RootCauseBackend {
		t.Fatalf("root cause = %s, want BACKEND", rep.RootCause)
	}
	if len(rep.Steps) == 0 || rep.Steps[0].Action != step.ActionWait {
		t.Fatal("backend repair should lead with a wait step")
	}
	if h.rec.retrying == 0 {
		t.Fatal("retry hook should have fired")
	}

	// The executed log shows both click attempts plus the repair wait.
	var clicks, failed int
	for _, x := range r.Executed {
		if x.Step.Action == step.ActionClick {
			clicks++
			if x.Status == step.StatusFailed {
				failed++
				if len(x.NetworkErrors) == 0 {
					t.Fatal("failed click should carry the 5xx network event")
				}
			}
		}
	}
	if clicks != 2 || failed != 2 {
		t.Fatalf("clicks = %d failed = %d, want 2/2", clicks, failed)
	}

	e, err := h.store.GetEvent(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if e.Status != run.StatusFailed {
		t.Fatalf("event status = %s, want failed", e.Status)
	}
}

func TestExecute_StaleSelectorRepairedByHealer(t *testing.T) {
	const pageURL = "https://app.example.com/settings"

	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[{"action":"click","target":"the save button"}]}`
	// The page was redesigned: the cache misses and the model cannot
	// find the element either. The healer knows the new selector.
	inv.selectorJSON = `{"selector":""}`
	inv.healJSON = `{"root_cause":"FRONTEND","suggestion":"The save button selector changed",
		"repairs":[{"action":"click","target":"the save button","selector":"#save-v2"}]}`

	sess := newFakeSession("about:blank")
	sess.visible["#save-v2"] = true

	h := newHarness(t, inv, sess, testConfig())
	r := h.newRun(t, pageURL, "Save the settings form")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", r.Status, r.FailureReason)
	}

	// navigate, failed click, repaired click.
	if len(r.Executed) != 3 {
		t.Fatalf("executed %d steps, want 3", len(r.Executed))
	}
	failed := r.Executed[1]
	if failed.Status != step.StatusFailed || failed.Suggestion == "" {
		t.Fatalf("first click should be failed with a suggestion, got %s %q", failed.Status, failed.Suggestion)
	}
	repaired := r.Executed[2]
	if repaired.Status != step.StatusSuccess {
		t.Fatalf("repaired click = %s, want success", repaired.Status)
	}
	if repaired.Step.Origin != step.OriginHealer {
		t.Fatalf("repaired click origin = %s, want healer", repaired.Step.Origin)
	}
	if repaired.RetryCount != 1 {
		t.Fatalf("repaired click retry count = %d, want 1", repaired.RetryCount)
	}
	if repaired.SelectorUsed != "#save-v2" {
		t.Fatalf("repaired click used %q, want the healer's #save-v2", repaired.SelectorUsed)
	}
	if n := inv.callCount("heal"); n != 1 {
		t.Fatalf("heal calls = %d, want 1", n)
	}
}

func TestExecute_ContinuesBestEffortAfterCriticalFailure(t *testing.T) {
	const pageURL = "https://app.example.com"

	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[
		{"action":"click","target":"the broken button"},
		{"action":"verify","target":"the footer"}]}`
	inv.selectorJSON = `{"selector":""}`
	inv.healJSON = `{"root_cause":"FRONTEND","repairs":[]}`

	sess := newFakeSession("about:blank")
	h := newHarness(t, inv, sess, testConfig())
	h.seedSelector(t, "the footer", pageURL, "#footer")

	r := h.newRun(t, pageURL, "Exercise the page")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The failed click dooms the run, but the remaining plan still
	// executes and lands in the audit trail.
	if r.Status != run.StatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if !strings.Contains(r.FailureReason, "broken button") {
		t.Fatalf("failure reason %q should name the doomed step", r.FailureReason)
	}
	if len(r.Executed) != 3 {
		t.Fatalf("executed %d steps, want 3 (navigate, click, verify)", len(r.Executed))
	}
	last := r.Executed[2]
	if last.Step.Action != step.ActionVerify || last.Status != step.StatusSuccess {
		t.Fatalf("verify after the failure = %s %s, want success", last.Step.Action, last.Status)
	}
}

// ──────────────────────────────────────────────────
// Edge behavior
// ──────────────────────────────────────────────────

func TestExecute_PlanGenerationFailureFailsFast(t *testing.T) {
	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[]}`

	sess := newFakeSession("about:blank")
	h := newHarness(t, inv, sess, testConfig())

	r := h.newRun(t, "https://example.com", "Do something")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if !strings.Contains(r.FailureReason, ReasonPlanGeneration) {
		t.Fatalf("failure reason %q should carry %s", r.FailureReason, ReasonPlanGeneration)
	}
	if n := inv.callCount("heal"); n != 0 {
		t.Fatalf("heal calls = %d, want 0 (nothing to heal)", n)
	}
}

func TestExecute_SessionDialFailure(t *testing.T) {
	h := newHarness(t, newScriptInvoker(), newFakeSession("about:blank"), testConfig())
	h.orch.deps.Dialer = &fakeDialer{err: errors.New("endpoint unreachable")}

	r := h.newRun(t, "https://example.com", "Do something")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if !strings.Contains(r.FailureReason, ReasonSession) {
		t.Fatalf("failure reason %q should carry %s", r.FailureReason, ReasonSession)
	}

	// The completion event is published even when nothing executed.
	if _, err := h.store.GetEvent(context.Background(), r.ID); err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
}

type panicDialer struct{}

func (panicDialer) NewSession(_ context.Context) (bridge.Session, error) {
	panic("dialer exploded")
}

func TestExecute_CollaboratorPanicStillFinalizesRun(t *testing.T) {
	h := newHarness(t, newScriptInvoker(), newFakeSession("about:blank"), testConfig())
	h.orch.deps.Dialer = panicDialer{}

	r := h.newRun(t, "https://example.com", "Do something")
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if !strings.Contains(r.FailureReason, "panic") {
		t.Fatalf("failure reason %q should record the panic", r.FailureReason)
	}

	// The terminal record and the completion event survive the panic.
	stored, err := h.store.GetRun(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != run.StatusFailed {
		t.Fatalf("stored status = %s, want failed", stored.Status)
	}
	if _, err := h.store.GetEvent(context.Background(), r.ID); err != nil {
		t.Fatalf("terminal event missing: %v", err)
	}
	if h.rec.finished != 1 {
		t.Fatalf("finished hooks = %d, want 1", h.rec.finished)
	}
}

func TestExecute_CancellationYieldsCancelledRun(t *testing.T) {
	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[{"action":"screenshot","target":"the page"}]}`

	h := newHarness(t, inv, newFakeSession("about:blank"), testConfig())
	r := h.newRun(t, "https://example.com", "Observe")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.orch.Execute(ctx, r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", r.Status)
	}
	if _, err := h.store.GetEvent(context.Background(), r.ID); err != nil {
		t.Fatalf("terminal event missing: %v", err)
	}
}

func TestExecute_DeadlineYieldsTimeout(t *testing.T) {
	h := newHarness(t, newScriptInvoker(), newFakeSession("about:blank"), testConfig())
	r := h.newRun(t, "https://example.com", "Observe")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if err := h.orch.Execute(ctx, r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusTimeout {
		t.Fatalf("status = %s, want timeout", r.Status)
	}
}

func TestExecute_ObservationalFailureDoesNotFailRun(t *testing.T) {
	const pageURL = "https://example.com"

	inv := newScriptInvoker()
	inv.planJSON = `{"steps":[
		{"action":"measure_performance","target":"the page"},
		{"action":"verify","target":"the headline"}]}`
	// The healer gives up on the performance probe immediately.
	inv.healJSON = `{"root_cause":"NETWORK","repairs":[]}`

	sess := newFakeSession("about:blank")
	h := newHarness(t, inv, sess, testConfig())
	h.seedSelector(t, "the headline", pageURL, "#headline")

	r := h.newRun(t, pageURL, "Check the landing page")

	// Performance measurement blows up; the run should shrug it off.
	h.orch.deps.Dialer = &fakeDialer{session: &perfFailSession{fakeSession: sess}}
	if err := h.orch.Execute(context.Background(), r); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if r.Status != run.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", r.Status, r.FailureReason)
	}
	var sawFailed bool
	for _, x := range r.Executed {
		if x.Step.Action == step.ActionPerformance && x.Status == step.StatusFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatal("the failed performance step should stay in the log")
	}
}

type perfFailSession struct {
	*fakeSession
}

func (p *perfFailSession) MeasurePerformance(_ context.Context) (*bridge.Performance, error) {
	return nil, errors.New("timing API unavailable")
}

func TestReporter_SummarizePersistsSummary(t *testing.T) {
	mem := memory.New()
	inv := ai.InvokerFunc(func(_ context.Context, req ai.Request) (string, error) {
		if !strings.Contains(req.User, "Log in") {
			t.Errorf("prompt should describe the run goals, got %q", req.User)
		}
		return "  Login flow passed end to end.  ", nil
	})
	rp := NewReporter(mem, inv, discardLogger())

	r := run.New("org_test", "https://example.com", []string{"Log in"})
	if err := mem.CreateRun(context.Background(), r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	rp.Summarize(r)

	if r.Summary != "Login flow passed end to end." {
		t.Fatalf("summary = %q", r.Summary)
	}
	stored, err := mem.GetRun(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Summary != r.Summary {
		t.Fatal("summary not persisted")
	}
}
