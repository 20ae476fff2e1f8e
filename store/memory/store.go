package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/event"
	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/selector"
	"github.com/probelab/pilot/step"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ run.Store      = (*Store)(nil)
	_ selector.Store = (*Store)(nil)
	_ persona.Store  = (*Store)(nil)
	_ event.Store    = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	runs      map[string]*run.TestRun
	selectors map[string]*selector.CachedSelector // key: selector.Key.String()
	personas  map[string]*persona.Definition
	events    map[string]*event.CompletionEvent // key: run ID
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:      make(map[string]*run.TestRun),
		selectors: make(map[string]*selector.CachedSelector),
		personas:  make(map[string]*persona.Definition),
		events:    make(map[string]*event.CompletionEvent),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Ping / Close
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Run Store
// ──────────────────────────────────────────────────

// CreateRun persists a new run in pending state.
func (m *Store) CreateRun(_ context.Context, r *run.TestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.runs[key]; exists {
		return pilot.ErrRunAlreadyExists
	}
	m.runs[key] = copyRun(r)
	return nil
}

// GetRun retrieves a run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*run.TestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, pilot.ErrRunNotFound
	}
	return copyRun(r), nil
}

// UpdateRun persists changes to an existing run.
func (m *Store) UpdateRun(_ context.Context, r *run.TestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.runs[key]; !ok {
		return pilot.ErrRunNotFound
	}
	cp := copyRun(r)
	cp.UpdatedAt = time.Now().UTC()
	m.runs[key] = cp
	return nil
}

// ListRuns returns runs matching the given options, newest first.
func (m *Store) ListRuns(_ context.Context, opts run.ListOpts) ([]*run.TestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*run.TestRun, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.TenantID != "" && r.TenantID != opts.TenantID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result = append(result, copyRun(r))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// copyRun deep-copies the slices so callers can mutate without racing
// with the store.
func copyRun(r *run.TestRun) *run.TestRun {
	cp := *r
	if r.Goals != nil {
		cp.Goals = append([]string(nil), r.Goals...)
	}
	if r.Executed != nil {
		cp.Executed = append([]*step.ExecutedStep(nil), r.Executed...)
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Selector Store
// ──────────────────────────────────────────────────

// GetSelector retrieves the entry for key.
func (m *Store) GetSelector(_ context.Context, key selector.Key) (*selector.CachedSelector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.selectors[key.String()]
	if !ok {
		return nil, pilot.ErrSelectorNotFound
	}
	cp := *s
	return &cp, nil
}

// PutSelector inserts or overwrites the entry for its key.
func (m *Store) PutSelector(_ context.Context, s *selector.CachedSelector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.selectors[s.Key.String()] = &cp
	return nil
}

// RecordSelectorSuccess increments the success counter under the store
// mutex so concurrent recorders never lose updates.
func (m *Store) RecordSelectorSuccess(_ context.Context, key selector.Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.selectors[key.String()]
	if !ok {
		return pilot.ErrSelectorNotFound
	}
	s.SuccessCount++
	s.LastUsedAt = at
	t := at
	s.LastSuccessAt = &t
	s.UpdatedAt = at
	return nil
}

// RecordSelectorFailure increments the failure counter under the store
// mutex.
func (m *Store) RecordSelectorFailure(_ context.Context, key selector.Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.selectors[key.String()]
	if !ok {
		return pilot.ErrSelectorNotFound
	}
	s.FailureCount++
	s.LastUsedAt = at
	s.UpdatedAt = at
	return nil
}

// DeleteSelector removes the entry for key.
func (m *Store) DeleteSelector(_ context.Context, key selector.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	if _, ok := m.selectors[k]; !ok {
		return pilot.ErrSelectorNotFound
	}
	delete(m.selectors, k)
	return nil
}

// DeleteStaleSelectors bulk-deletes entries whose LastUsedAt predates
// cutoff.
func (m *Store) DeleteStaleSelectors(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, s := range m.selectors {
		if s.LastUsedAt.Before(cutoff) {
			delete(m.selectors, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Persona Store
// ──────────────────────────────────────────────────

// SavePersona inserts or overwrites a persona definition.
func (m *Store) SavePersona(_ context.Context, def *persona.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *def
	m.personas[def.ID.String()] = &cp
	return nil
}

// ListPersonas returns all persona definitions.
func (m *Store) ListPersonas(_ context.Context) ([]*persona.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*persona.Definition, 0, len(m.personas))
	for _, def := range m.personas {
		cp := *def
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Name < result[k].Name
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// SaveEvent persists a completion event.
func (m *Store) SaveEvent(_ context.Context, e *event.CompletionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.events[e.RunID.String()] = &cp
	return nil
}

// GetEvent retrieves the completion event for a run.
func (m *Store) GetEvent(_ context.Context, runID id.RunID) (*event.CompletionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[runID.String()]
	if !ok {
		return nil, pilot.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEvents returns events for a tenant, newest first.
func (m *Store) ListEvents(_ context.Context, tenantID string, limit int) ([]*event.CompletionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*event.CompletionEvent, 0, len(m.events))
	for _, e := range m.events {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].At.After(result[k].At)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
