// Package admission implements fail-fast admission control: a global
// concurrency ceiling, per-tenant fairness caps, and a token-bucket
// submit rate limiter. Saturation is rejected synchronously at submit
// time — there is no waiting queue.
package admission

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
)

// Config defines the admission limits.
type Config struct {
	// MaxConcurrency is the global ceiling on simultaneously running
	// runs. Zero means no global limit.
	MaxConcurrency int

	// MaxPerTenant caps simultaneous runs per tenant. Zero means no
	// tenant-specific limit.
	MaxPerTenant int

	// SubmitRate is the sustained run submissions per second across all
	// tenants. Zero disables rate limiting.
	SubmitRate float64

	// SubmitBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if SubmitRate is set but SubmitBurst is zero.
	SubmitBurst int
}

// tenantState tracks the active run count for a single tenant.
type tenantState struct {
	active int
}

// Controller enforces admission limits. It is safe for concurrent use.
// Slots are tracked per run ID so Release is idempotent — double
// release from overlapping cleanup paths never corrupts the counters.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	active  int
	tenants map[string]*tenantState
	held    map[string]string // run ID -> tenant ID
}

// NewController creates a Controller with the given limits.
func NewController(cfg Config) *Controller {
	c := &Controller{
		cfg:     cfg,
		tenants: make(map[string]*tenantState),
		held:    make(map[string]string),
	}
	if cfg.SubmitRate > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	return c
}

// Acquire checks the rate limit and both concurrency ceilings for the
// run. On success it claims a slot and returns nil; the caller MUST
// call Release with the same run ID when the run completes. On
// rejection it returns pilot.ErrConcurrencyLimit or
// pilot.ErrTenantLimit without blocking.
func (c *Controller) Acquire(runID id.RunID, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := runID.String()
	if _, dup := c.held[key]; dup {
		return fmt.Errorf("run %s already holds a slot: %w", key, pilot.ErrConcurrencyLimit)
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return fmt.Errorf("submit rate exceeded: %w", pilot.ErrConcurrencyLimit)
	}
	if c.cfg.MaxConcurrency > 0 && c.active >= c.cfg.MaxConcurrency {
		return fmt.Errorf("%d runs active: %w", c.active, pilot.ErrConcurrencyLimit)
	}

	ts := c.tenants[tenantID]
	if ts == nil {
		ts = &tenantState{}
		c.tenants[tenantID] = ts
	}
	if c.cfg.MaxPerTenant > 0 && ts.active >= c.cfg.MaxPerTenant {
		return fmt.Errorf("tenant %s has %d runs active: %w", tenantID, ts.active, pilot.ErrTenantLimit)
	}

	c.active++
	ts.active++
	c.held[key] = tenantID
	return nil
}

// Release returns the slot held by the run. Releasing a run that holds
// no slot is a no-op, so every cleanup path can call it safely.
func (c *Controller) Release(runID id.RunID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := runID.String()
	tenantID, ok := c.held[key]
	if !ok {
		return
	}
	delete(c.held, key)

	if c.active > 0 {
		c.active--
	}
	if ts := c.tenants[tenantID]; ts != nil {
		if ts.active > 0 {
			ts.active--
		}
		if ts.active == 0 {
			delete(c.tenants, tenantID)
		}
	}
}

// ActiveCount returns the current number of held slots.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// TenantActiveCount returns the current number of held slots for a
// tenant.
func (c *Controller) TenantActiveCount(tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts := c.tenants[tenantID]; ts != nil {
		return ts.active
	}
	return 0
}
