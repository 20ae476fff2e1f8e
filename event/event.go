// Package event carries run lifecycle notifications. Terminal runs
// publish exactly one completion event, persisted through the store
// and fanned out to in-process subscribers.
package event

import (
	"context"
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/run"
)

// CompletionEvent is published once when a run reaches a terminal
// state. Consumers drive reporting and webhook delivery off it.
type CompletionEvent struct {
	pilot.Entity

	ID            id.EventID `json:"id"`
	RunID         id.RunID   `json:"run_id"`
	TenantID      string     `json:"tenant_id"`
	Status        run.Status `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Steps         int        `json:"steps"`
	At            time.Time  `json:"at"`
}

// NewCompletion builds the completion event for a terminal run.
func NewCompletion(r *run.TestRun) *CompletionEvent {
	at := time.Now().UTC()
	if r.CompletedAt != nil {
		at = *r.CompletedAt
	}
	return &CompletionEvent{
		Entity:        pilot.NewEntity(),
		ID:            id.NewEventID(),
		RunID:         r.ID,
		TenantID:      r.TenantID,
		Status:        r.Status,
		FailureReason: r.FailureReason,
		Steps:         len(r.Executed),
		At:            at,
	}
}

// Store defines the persistence contract for completion events.
type Store interface {
	// SaveEvent persists the event.
	SaveEvent(ctx context.Context, e *CompletionEvent) error

	// GetEvent retrieves the completion event for a run.
	// Returns pilot.ErrEventNotFound when absent.
	GetEvent(ctx context.Context, runID id.RunID) (*CompletionEvent, error)

	// ListEvents returns events for a tenant, newest first. A zero
	// limit means no limit.
	ListEvents(ctx context.Context, tenantID string, limit int) ([]*CompletionEvent, error)
}
