package selector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/selector"
	"github.com/probelab/pilot/store/memory"
)

func newCache(t *testing.T) *selector.Cache {
	t.Helper()
	return selector.NewCache(memory.New(), nil)
}

func TestCache_PutAndFind(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if err := c.Put(ctx, "org_a", "Click Login", "https://x.com/users/42", "#login", "login button"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Paraphrase-equivalent goal and structurally equal URL must hit.
	got, err := c.Find(ctx, "org_a", "  click login ", "https://x.com/users/7")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Selector != "#login" {
		t.Fatalf("Selector = %q, want #login", got.Selector)
	}
	if got.SuccessCount != 1 || got.FailureCount != 0 {
		t.Fatalf("fresh entry counters = %d/%d, want 1/0", got.SuccessCount, got.FailureCount)
	}
}

func TestCache_Miss(t *testing.T) {
	c := newCache(t)
	if _, err := c.Find(context.Background(), "org_a", "click login", "https://x.com/a"); !errors.Is(err, pilot.ErrSelectorNotFound) {
		t.Fatalf("expected ErrSelectorNotFound, got %v", err)
	}
}

func TestCache_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if err := c.Put(ctx, "org_a", "click login", "https://x.com/a", "#login", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := c.Find(ctx, "org_b", "click login", "https://x.com/a"); !errors.Is(err, pilot.ErrSelectorNotFound) {
		t.Fatalf("tenant b must not see tenant a's entry, got %v", err)
	}
}

func TestCache_OverwriteResetsCounters(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if err := c.Put(ctx, "org_a", "click login", "https://x.com/a", "#old", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.RecordSuccess(ctx, "org_a", "click login", "https://x.com/a"); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}
	}

	// A replacement selector is a fresh hypothesis.
	if err := c.Put(ctx, "org_a", "click login", "https://x.com/a", "#new", ""); err != nil {
		t.Fatalf("Put (overwrite): %v", err)
	}
	got, err := c.Find(ctx, "org_a", "click login", "https://x.com/a")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Selector != "#new" {
		t.Fatalf("Selector = %q, want #new", got.Selector)
	}
	if got.SuccessCount != 1 || got.FailureCount != 0 {
		t.Fatalf("overwrite must reset counters, got %d/%d", got.SuccessCount, got.FailureCount)
	}
}

func TestCache_FailureNeverAutoInvalidates(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if err := c.Put(ctx, "org_a", "click login", "https://x.com/a", "#login", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := c.RecordFailure(ctx, "org_a", "click login", "https://x.com/a"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	got, err := c.Find(ctx, "org_a", "click login", "https://x.com/a")
	if err != nil {
		t.Fatalf("entry must survive repeated failures: %v", err)
	}
	if got.FailureCount != 5 {
		t.Fatalf("FailureCount = %d, want 5", got.FailureCount)
	}
}

func TestCache_RecordToleratesMiss(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if err := c.RecordSuccess(ctx, "org_a", "click login", "https://x.com/a"); err != nil {
		t.Fatalf("RecordSuccess on miss must be a no-op, got %v", err)
	}
	if err := c.RecordFailure(ctx, "org_a", "click login", "https://x.com/a"); err != nil {
		t.Fatalf("RecordFailure on miss must be a no-op, got %v", err)
	}
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if err := c.Put(ctx, "org_a", "click login", "https://x.com/a", "#login", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Invalidate(ctx, "org_a", "click login", "https://x.com/a"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := c.Find(ctx, "org_a", "click login", "https://x.com/a"); !errors.Is(err, pilot.ErrSelectorNotFound) {
		t.Fatalf("expected miss after Invalidate, got %v", err)
	}

	// Invalidating an absent key is not an error.
	if err := c.Invalidate(ctx, "org_a", "click login", "https://x.com/a"); err != nil {
		t.Fatalf("Invalidate on miss: %v", err)
	}
}

func TestCache_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if _, err := c.Find(ctx, "org_a", "  ", "https://x.com/a"); !errors.Is(err, pilot.ErrBlankGoal) {
		t.Fatalf("expected ErrBlankGoal, got %v", err)
	}
	if err := c.Put(ctx, "org_a", "click login", "", "#login", ""); !errors.Is(err, pilot.ErrBlankURL) {
		t.Fatalf("expected ErrBlankURL, got %v", err)
	}
}

func TestCache_CleanupStale(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := selector.NewCache(store, nil)

	key, err := selector.BuildKey("org_a", "click login", "https://x.com/a")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	err = store.PutSelector(ctx, &selector.CachedSelector{
		Key:        key,
		Selector:   "#login",
		LastUsedAt: time.Now().UTC().Add(-31 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("PutSelector: %v", err)
	}

	n, err := c.CleanupStale(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
}
