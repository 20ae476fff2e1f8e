// Package engine assembles the execution core: storage, admission,
// the worker pool, the orchestrator and its collaborators. Build wires
// the pieces; the Engine exposes the run lifecycle (create, submit,
// cancel, query) to callers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/admission"
	"github.com/probelab/pilot/agent"
	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/driver"
	"github.com/probelab/pilot/event"
	"github.com/probelab/pilot/ext"
	"github.com/probelab/pilot/healer"
	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/middleware"
	"github.com/probelab/pilot/observability"
	"github.com/probelab/pilot/obstacle"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/planner"
	"github.com/probelab/pilot/queue"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/selector"
	"github.com/probelab/pilot/store"
	"github.com/probelab/pilot/worker"
)

// Engine is the assembled execution core. Zero value is not usable;
// construct with Build.
type Engine struct {
	cfg      pilot.Config
	store    store.Store
	bus      *event.Bus
	exts     *ext.Registry
	personas *persona.Registry
	cache    *selector.Cache
	janitor  *selector.Janitor
	ctrl     *admission.Controller
	pool     *worker.Pool
	logger   *slog.Logger
}

// Build wires an Engine over the given store, browser dialer, and
// model invoker.
func Build(st store.Store, dialer bridge.Dialer, invoker ai.Invoker, cfg pilot.Config, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, pilot.ErrNoStore
	}
	if dialer == nil {
		return nil, fmt.Errorf("engine: nil bridge dialer")
	}
	if invoker == nil {
		return nil, fmt.Errorf("engine: nil model invoker")
	}
	cfg = normalize(cfg)

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger

	cache := selector.NewCache(st, logger)
	personas := persona.NewRegistry(st)
	bus := event.NewBus(st, logger)
	exts := ext.NewRegistry(logger)
	// OTel instruments are no-ops without a configured provider, so the
	// metrics extension is always on.
	exts.Register(observability.NewMetricsExtension())
	for _, e := range o.extensions {
		exts.Register(e)
	}

	ctrl := admission.NewController(admission.Config{
		MaxConcurrency: cfg.Concurrency,
		MaxPerTenant:   cfg.MaxRunsPerTenant,
		SubmitRate:     cfg.SubmitRate,
		SubmitBurst:    cfg.SubmitBurst,
	})

	chain := o.chain
	if chain == nil {
		chain = middleware.Chain(
			middleware.Recover(logger),
			middleware.Tracing(),
			middleware.Metrics(),
			middleware.Logging(logger),
			middleware.Timeout(cfg.StepTimeout),
		)
	}

	var reporter *agent.Reporter
	if o.summaries {
		reporter = agent.NewReporter(st, invoker, logger)
	}

	orch := agent.NewOrchestrator(agent.Deps{
		Runs:     st,
		Queue:    queue.NewActionQueue(),
		History:  queue.NewHistory(),
		Planner:  planner.New(invoker, cfg.PlannerMaxSteps, logger),
		Healer:   healer.New(invoker, logger),
		Detector: obstacle.NewDetector(invoker, logger),
		Driver:   driver.New(cache, invoker, logger),
		Dialer:   dialer,
		Personas: personas,
		Bus:      bus,
		Exts:     exts,
		Chain:    chain,
		Pacing:   o.pacing,
		Reporter: reporter,
		Config:   cfg,
		Logger:   logger,
	})

	pool := worker.NewPool(ctrl, orch, logger,
		worker.WithRunTimeout(cfg.RunTimeout),
		worker.WithMaxActive(cfg.Concurrency),
	)

	return &Engine{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		exts:     exts,
		personas: personas,
		cache:    cache,
		janitor:  selector.NewJanitor(cache, cfg.SelectorTTL, cfg.JanitorSchedule, logger),
		ctrl:     ctrl,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Start verifies storage connectivity and brings the pool and the
// selector janitor online.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("engine: store ping: %w", err)
	}
	if err := e.janitor.Start(); err != nil {
		return fmt.Errorf("engine: janitor: %w", err)
	}
	if err := e.pool.Start(ctx); err != nil {
		return err
	}
	e.logger.Info("engine started",
		slog.Int("concurrency", e.cfg.Concurrency),
		slog.String("worker_id", e.pool.WorkerID().String()),
	)
	return nil
}

// Stop drains the pool, halts the janitor, and notifies extensions.
// In-flight runs get the shutdown budget to finish; stragglers are
// cancelled and finalize as cancelled runs.
func (e *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := e.pool.Stop(ctx)
	e.janitor.Stop()
	e.exts.EmitShutdown(ctx)
	e.logger.Info("engine stopped")
	return err
}

// CreateRunParams are the caller-supplied inputs for a new run.
type CreateRunParams struct {
	TenantID  string
	TargetURL string
	Goals     []string
	Persona   string
	Mode      run.ExecutionMode
}

// CreateRun validates the params and persists a pending run. The run
// does not execute until Submit.
func (e *Engine) CreateRun(ctx context.Context, p CreateRunParams) (*run.TestRun, error) {
	target := strings.TrimSpace(p.TargetURL)
	if target == "" {
		return nil, pilot.ErrBlankURL
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("target %q is not an absolute URL: %w", target, pilot.ErrBlankURL)
	}

	goals := make([]string, 0, len(p.Goals))
	for _, g := range p.Goals {
		if g = strings.TrimSpace(g); g != "" {
			goals = append(goals, g)
		}
	}
	if len(goals) == 0 {
		return nil, pilot.ErrBlankGoal
	}

	// Persona typos surface at creation, not minutes later inside the
	// run.
	if _, err := e.personas.Resolve(ctx, p.Persona); err != nil {
		return nil, err
	}

	r := run.New(p.TenantID, target, goals)
	if p.Persona != "" {
		r.Persona = p.Persona
	}
	if p.Mode != "" {
		r.Mode = p.Mode
	}
	if err := e.store.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	e.logger.Info("run created",
		slog.String("run_id", r.ID.String()),
		slog.String("tenant_id", r.TenantID),
		slog.String("url", r.TargetURL),
	)
	return r, nil
}

// Submit admits the pending run and dispatches it for execution.
// Admission rejections surface synchronously.
func (e *Engine) Submit(ctx context.Context, runID id.RunID) error {
	r, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s already %s: %w", runID, r.Status, pilot.ErrRunTerminal)
	}
	if r.Status != run.StatusPending {
		return fmt.Errorf("run %s is %s: %w", runID, r.Status, pilot.ErrInvalidTransition)
	}
	return e.pool.Submit(ctx, r)
}

// Cancel aborts a run. An executing run is cancelled through its
// context and finalizes through the orchestrator; a pending run is
// finalized here, completion event included.
func (e *Engine) Cancel(ctx context.Context, runID id.RunID) error {
	if e.pool.Cancel(runID) {
		return nil
	}

	r, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s already %s: %w", runID, r.Status, pilot.ErrRunTerminal)
	}
	// Only a pending run is finalized here. A running run not found in
	// the pool is mid-dispatch; the caller can retry.
	if r.Status != run.StatusPending {
		return fmt.Errorf("run %s is %s: %w", runID, r.Status, pilot.ErrInvalidTransition)
	}
	if err := r.Transition(run.StatusCancelled); err != nil {
		return err
	}
	if err := e.store.UpdateRun(ctx, r); err != nil {
		return err
	}
	return e.bus.Publish(ctx, event.NewCompletion(r))
}

// GetRun retrieves a run by ID.
func (e *Engine) GetRun(ctx context.Context, runID id.RunID) (*run.TestRun, error) {
	return e.store.GetRun(ctx, runID)
}

// ListRuns returns runs matching opts.
func (e *Engine) ListRuns(ctx context.Context, opts run.ListOpts) ([]*run.TestRun, error) {
	return e.store.ListRuns(ctx, opts)
}

// Events returns a tenant's completion events, newest first.
func (e *Engine) Events(ctx context.Context, tenantID string, limit int) ([]*event.CompletionEvent, error) {
	return e.store.ListEvents(ctx, tenantID, limit)
}

// Subscribe registers a completion handler; the returned function
// unsubscribes it.
func (e *Engine) Subscribe(h event.Handler) func() {
	return e.bus.Subscribe(h)
}

// ActiveCount returns the number of runs currently executing.
func (e *Engine) ActiveCount() int { return e.pool.ActiveCount() }

// normalize back-fills zero config fields with defaults.
func normalize(cfg pilot.Config) pilot.Config {
	def := pilot.DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = def.StepTimeout
	}
	if cfg.StepRetryLimit <= 0 {
		cfg.StepRetryLimit = def.StepRetryLimit
	}
	if cfg.PlannerMaxSteps <= 0 {
		cfg.PlannerMaxSteps = def.PlannerMaxSteps
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.SelectorTTL <= 0 {
		cfg.SelectorTTL = def.SelectorTTL
	}
	if cfg.JanitorSchedule == "" {
		cfg.JanitorSchedule = def.JanitorSchedule
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return cfg
}
