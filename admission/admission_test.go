package admission

import (
	"errors"
	"sync"
	"testing"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
)

func TestAcquire_GlobalCeiling(t *testing.T) {
	c := NewController(Config{MaxConcurrency: 2})

	a, b, d := id.NewRunID(), id.NewRunID(), id.NewRunID()
	if err := c.Acquire(a, "org_a"); err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	if err := c.Acquire(b, "org_b"); err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	if err := c.Acquire(d, "org_c"); !errors.Is(err, pilot.ErrConcurrencyLimit) {
		t.Fatalf("expected ErrConcurrencyLimit, got %v", err)
	}

	// A release frees the slot for the next run.
	c.Release(a)
	if err := c.Acquire(d, "org_c"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestAcquire_TenantFairness(t *testing.T) {
	c := NewController(Config{MaxConcurrency: 10, MaxPerTenant: 2})

	if err := c.Acquire(id.NewRunID(), "org_a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Acquire(id.NewRunID(), "org_a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Acquire(id.NewRunID(), "org_a"); !errors.Is(err, pilot.ErrTenantLimit) {
		t.Fatalf("expected ErrTenantLimit, got %v", err)
	}

	// A saturated tenant must not block other tenants.
	if err := c.Acquire(id.NewRunID(), "org_b"); err != nil {
		t.Fatalf("Acquire other tenant: %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	c := NewController(Config{MaxConcurrency: 2, MaxPerTenant: 2})

	r := id.NewRunID()
	if err := c.Acquire(r, "org_a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	c.Release(r)
	c.Release(r) // double release from overlapping cleanup paths

	if got := c.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount = %d, want 0", got)
	}
	if got := c.TenantActiveCount("org_a"); got != 0 {
		t.Fatalf("TenantActiveCount = %d, want 0", got)
	}
}

func TestAcquire_DuplicateRun(t *testing.T) {
	c := NewController(Config{MaxConcurrency: 5})

	r := id.NewRunID()
	if err := c.Acquire(r, "org_a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Acquire(r, "org_a"); err == nil {
		t.Fatal("a run must not hold two slots")
	}
	if got := c.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}
}

func TestAcquire_SubmitRate(t *testing.T) {
	// One token, no refill within the test window.
	c := NewController(Config{SubmitRate: 0.001, SubmitBurst: 1})

	if err := c.Acquire(id.NewRunID(), "org_a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Acquire(id.NewRunID(), "org_a"); !errors.Is(err, pilot.ErrConcurrencyLimit) {
		t.Fatalf("expected rate rejection, got %v", err)
	}
}

func TestSlotConservation_Concurrent(t *testing.T) {
	c := NewController(Config{MaxConcurrency: 4, MaxPerTenant: 4})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := id.NewRunID()
			if err := c.Acquire(r, "org_a"); err != nil {
				return
			}
			c.Release(r)
		}()
	}
	wg.Wait()

	if got := c.ActiveCount(); got != 0 {
		t.Fatalf("slots leaked: ActiveCount = %d, want 0", got)
	}
}
