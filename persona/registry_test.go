package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
)

type fakeStore struct {
	personas []*Definition
	loads    int
}

func (f *fakeStore) ListPersonas(_ context.Context) ([]*Definition, error) {
	f.loads++
	return f.personas, nil
}

func TestResolve_Builtin(t *testing.T) {
	r := NewRegistry(nil)

	def, err := r.Resolve(context.Background(), "standard")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if def.Source != SourceBuiltin {
		t.Fatalf("expected builtin, got %s", def.Source)
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	r := NewRegistry(nil)

	a, err := r.Resolve(context.Background(), "Auditor")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := r.Resolve(context.Background(), "AUDITOR")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a != b {
		t.Fatal("case variants must resolve to the same definition")
	}
	if !a.ScanEveryAction {
		t.Fatal("auditor persona scans every action")
	}
}

func TestResolve_EmptyDefaultsToStandard(t *testing.T) {
	r := NewRegistry(nil)
	def, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if def.Name != "standard" {
		t.Fatalf("expected standard, got %s", def.Name)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Resolve(context.Background(), "nope"); !errors.Is(err, pilot.ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestResolve_CustomOverridesBuiltin(t *testing.T) {
	store := &fakeStore{personas: []*Definition{{
		ID:     id.NewPersonaID(),
		Name:   "standard",
		Source: SourceCustom,
		Active: true,
	}}}
	r := NewRegistry(store)

	def, err := r.Resolve(context.Background(), "standard")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if def.Source != SourceCustom {
		t.Fatal("custom persona should override builtin of the same name")
	}
}

func TestResolve_InactiveIgnored(t *testing.T) {
	store := &fakeStore{personas: []*Definition{{
		ID:     id.NewPersonaID(),
		Name:   "ghost",
		Source: SourceCustom,
		Active: false,
	}}}
	r := NewRegistry(store)

	if _, err := r.Resolve(context.Background(), "ghost"); !errors.Is(err, pilot.ErrPersonaNotFound) {
		t.Fatalf("inactive persona must not resolve, got %v", err)
	}
}

func TestInvalidate_Reloads(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)

	if _, err := r.Resolve(context.Background(), "standard"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("expected 1 load, got %d", store.loads)
	}

	// Cached: no further loads.
	_, _ = r.Resolve(context.Background(), "standard")
	if store.loads != 1 {
		t.Fatalf("expected cached resolution, got %d loads", store.loads)
	}

	// Invalidate forces a reload on next resolve.
	store.personas = []*Definition{{Name: "fresh", Source: SourceCustom, Active: true}}
	r.Invalidate()
	if _, err := r.Resolve(context.Background(), "fresh"); err != nil {
		t.Fatalf("Resolve after Invalidate: %v", err)
	}
	if store.loads != 2 {
		t.Fatalf("expected reload after Invalidate, got %d loads", store.loads)
	}
}
