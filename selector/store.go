package selector

import (
	"context"
	"time"
)

// Store defines the persistence contract for cached selectors.
//
// Counter updates are store-side operations so that the concurrent
// read-modify-write of success/failure counts never loses updates —
// the in-memory backend serializes under a mutex, the Redis backend
// uses atomic hash increments.
type Store interface {
	// GetSelector retrieves the entry for key.
	// Returns pilot.ErrSelectorNotFound when absent.
	GetSelector(ctx context.Context, key Key) (*CachedSelector, error)

	// PutSelector inserts or overwrites the entry for its key.
	PutSelector(ctx context.Context, c *CachedSelector) error

	// RecordSelectorSuccess atomically increments the success counter
	// and stamps LastUsedAt/LastSuccessAt.
	RecordSelectorSuccess(ctx context.Context, key Key, at time.Time) error

	// RecordSelectorFailure atomically increments the failure counter
	// and stamps LastUsedAt.
	RecordSelectorFailure(ctx context.Context, key Key, at time.Time) error

	// DeleteSelector removes the entry for key.
	DeleteSelector(ctx context.Context, key Key) error

	// DeleteStaleSelectors bulk-deletes entries whose LastUsedAt
	// predates cutoff, returning how many were removed.
	DeleteStaleSelectors(ctx context.Context, cutoff time.Time) (int, error)
}
