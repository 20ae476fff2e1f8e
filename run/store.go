package run

import (
	"context"

	"github.com/probelab/pilot/id"
)

// ListOpts controls filtering for run list queries.
type ListOpts struct {
	// TenantID filters by tenant. Empty means all tenants.
	TenantID string
	// Status filters by run status. Empty means all states.
	Status Status
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for test runs. Transactional
// boundaries belong to the implementing adapter, not to callers.
type Store interface {
	// CreateRun persists a new run in pending state.
	CreateRun(ctx context.Context, r *TestRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*TestRun, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, r *TestRun) error

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts ListOpts) ([]*TestRun, error)
}
