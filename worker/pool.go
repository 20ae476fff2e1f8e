// Package worker manages the bounded pool of goroutines that execute
// runs. Admission is checked synchronously at submit time — a rejected
// run fails fast instead of queueing — and every accepted run holds
// exactly one admission slot until its goroutine exits, panic included.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/admission"
	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/run"
)

// Runner executes one run to completion. The orchestrator implements
// this; tests substitute fakes.
type Runner interface {
	Execute(ctx context.Context, r *run.TestRun) error
}

// Pool dispatches accepted runs onto goroutines, one per run, bounded
// by the admission controller.
type Pool struct {
	admission  *admission.Controller
	runner     Runner
	runTimeout time.Duration
	maxActive  int
	workerID   id.WorkerID
	logger     *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRunTimeout sets the wall-clock budget applied to each run.
func WithRunTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.runTimeout = d }
}

// WithMaxActive caps simultaneously executing runs at the pool level,
// independent of admission limits.
func WithMaxActive(n int) PoolOption {
	return func(p *Pool) { p.maxActive = n }
}

// NewPool creates a pool.
func NewPool(ctrl *admission.Controller, runner Runner, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		admission:  ctrl,
		runner:     runner,
		runTimeout: 10 * time.Minute,
		maxActive:  10,
		workerID:   id.NewWorkerID(),
		logger:     logger,
		active:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start marks the pool as accepting submissions.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("max_active", p.maxActive),
		slog.Duration("run_timeout", p.runTimeout),
	)
	return nil
}

// Stop rejects new submissions and waits for in-flight runs. If the
// context has a deadline, active runs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active runs")
		p.cancelActiveRuns()
		p.wg.Wait()
	}

	return nil
}

// Submit admits the run and dispatches it onto its own goroutine.
// The admission check is synchronous: a rejected run returns
// pilot.ErrConcurrencyLimit, pilot.ErrTenantLimit, or
// pilot.ErrPoolSaturated immediately and nothing is queued.
func (p *Pool) Submit(ctx context.Context, r *run.TestRun) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return fmt.Errorf("pool not running: %w", pilot.ErrPoolSaturated)
	}

	p.activeMu.Lock()
	saturated := len(p.active) >= p.maxActive
	p.activeMu.Unlock()
	if saturated {
		return fmt.Errorf("%d runs in flight: %w", p.maxActive, pilot.ErrPoolSaturated)
	}

	if err := p.admission.Acquire(r.ID, r.TenantID); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.execute(r)
	return nil
}

// Cancel aborts the in-flight run by cancelling its context. Returns
// false when the run is not currently executing.
func (p *Pool) Cancel(runID id.RunID) bool {
	p.activeMu.Lock()
	cancel, ok := p.active[runID.String()]
	p.activeMu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// ActiveCount returns the number of runs currently executing.
func (p *Pool) ActiveCount() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.active)
}

// execute runs r under the pool's wall-clock budget. The admission
// slot and the active-map entry are released on every exit path.
func (p *Pool) execute(r *run.TestRun) {
	defer p.wg.Done()
	defer p.admission.Release(r.ID)

	ctx, cancel := context.WithTimeout(context.Background(), p.runTimeout)
	defer cancel()

	key := r.ID.String()
	p.trackRun(key, cancel)
	defer p.untrackRun(key)

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("run executor panicked",
				slog.String("run_id", key),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := p.runner.Execute(ctx, r); err != nil {
		p.logger.Debug("run execution failed",
			slog.String("run_id", key),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) trackRun(runID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[runID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackRun(runID string) {
	p.activeMu.Lock()
	delete(p.active, runID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveRuns() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for runID, cancel := range p.active {
		p.logger.Warn("cancelling active run", slog.String("run_id", runID))
		cancel()
	}
}
