package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
)

// Cache is the selector cache service. All operations validate and
// normalize their inputs through BuildKey, so every caller shares one
// key derivation.
type Cache struct {
	store  Store
	logger *slog.Logger
}

// NewCache creates a Cache over the given store.
func NewCache(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger}
}

// Find looks up the cached selector for (tenant, goal, url).
// Returns pilot.ErrSelectorNotFound on a miss; validation errors on
// blank inputs.
func (c *Cache) Find(ctx context.Context, tenantID, goal, rawURL string) (*CachedSelector, error) {
	key, err := BuildKey(tenantID, goal, rawURL)
	if err != nil {
		return nil, err
	}
	return c.store.GetSelector(ctx, key)
}

// Put caches a freshly AI-resolved selector. An overwrite is treated
// as a fresh hypothesis: success count resets to 1, failure count to 0.
func (c *Cache) Put(ctx context.Context, tenantID, goal, rawURL, sel, description string) error {
	key, err := BuildKey(tenantID, goal, rawURL)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := &CachedSelector{
		Entity:        pilot.NewEntity(),
		ID:            id.NewSelectorID(),
		Key:           key,
		Selector:      sel,
		Description:   description,
		SuccessCount:  1,
		FailureCount:  0,
		LastUsedAt:    now,
		LastSuccessAt: &now,
	}
	if err := c.store.PutSelector(ctx, entry); err != nil {
		return fmt.Errorf("cache selector for %s: %w", key.URLPattern, err)
	}

	c.logger.Debug("selector cached",
		slog.String("tenant_id", tenantID),
		slog.String("url_pattern", key.URLPattern),
		slog.String("selector", sel),
	)
	return nil
}

// RecordSuccess bumps the success counter without altering the
// selector value. A miss is not an error — outcome recording is
// best-effort bookkeeping.
func (c *Cache) RecordSuccess(ctx context.Context, tenantID, goal, rawURL string) error {
	key, err := BuildKey(tenantID, goal, rawURL)
	if err != nil {
		return err
	}
	if err := c.store.RecordSelectorSuccess(ctx, key, time.Now().UTC()); err != nil {
		if errors.Is(err, pilot.ErrSelectorNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// RecordFailure bumps the failure counter. The entry is NOT deleted:
// repeated verification failure accumulates evidence but does not
// auto-invalidate; eviction is explicit (Invalidate) or age-based
// (CleanupStale).
func (c *Cache) RecordFailure(ctx context.Context, tenantID, goal, rawURL string) error {
	key, err := BuildKey(tenantID, goal, rawURL)
	if err != nil {
		return err
	}
	if err := c.store.RecordSelectorFailure(ctx, key, time.Now().UTC()); err != nil {
		if errors.Is(err, pilot.ErrSelectorNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// Invalidate deletes the entry outright.
func (c *Cache) Invalidate(ctx context.Context, tenantID, goal, rawURL string) error {
	key, err := BuildKey(tenantID, goal, rawURL)
	if err != nil {
		return err
	}
	if err := c.store.DeleteSelector(ctx, key); err != nil && !errors.Is(err, pilot.ErrSelectorNotFound) {
		return err
	}
	return nil
}

// CleanupStale bulk-deletes entries unused for longer than maxAge.
func (c *Cache) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	n, err := c.store.DeleteStaleSelectors(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale selectors: %w", err)
	}
	if n > 0 {
		c.logger.Info("stale selectors reaped",
			slog.Int("count", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return n, nil
}
