package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/event"
	"github.com/probelab/pilot/id"
)

// SaveEvent stores the completion event as JSON and prepends the run
// ID to the tenant's event list, newest first.
func (s *Store) SaveEvent(ctx context.Context, e *event.CompletionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("pilot/redis: marshal event: %w", err)
	}

	rID := e.RunID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, eventKey(rID), data, 0)
	pipe.LPush(ctx, tenantEventsKey(e.TenantID), rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pilot/redis: save event: %w", err)
	}
	return nil
}

// GetEvent retrieves the completion event for a run.
func (s *Store) GetEvent(ctx context.Context, runID id.RunID) (*event.CompletionEvent, error) {
	data, err := s.client.Get(ctx, eventKey(runID.String())).Bytes()
	if err == goredis.Nil {
		return nil, pilot.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pilot/redis: get event: %w", err)
	}
	var e event.CompletionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("pilot/redis: unmarshal event: %w", err)
	}
	return &e, nil
}

// ListEvents returns events for a tenant, newest first.
func (s *Store) ListEvents(ctx context.Context, tenantID string, limit int) ([]*event.CompletionEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	runIDs, err := s.client.LRange(ctx, tenantEventsKey(tenantID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("pilot/redis: list tenant events: %w", err)
	}

	result := make([]*event.CompletionEvent, 0, len(runIDs))
	for _, rID := range runIDs {
		parsed, err := id.ParseRunID(rID)
		if err != nil {
			continue
		}
		e, err := s.GetEvent(ctx, parsed)
		if err == pilot.ErrEventNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}
