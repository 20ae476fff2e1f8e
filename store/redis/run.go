package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
	"github.com/probelab/pilot/run"
)

// CreateRun stores the run as JSON and registers its ID for
// enumeration.
func (s *Store) CreateRun(ctx context.Context, r *run.TestRun) error {
	rID := r.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("pilot/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return pilot.ErrRunAlreadyExists
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pilot/redis: marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, runIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pilot/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*run.TestRun, error) {
	return s.getRunByKey(ctx, runKey(runID.String()))
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, r *run.TestRun) error {
	key := runKey(r.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("pilot/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return pilot.ErrRunNotFound
	}

	r.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pilot/redis: marshal run: %w", err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("pilot/redis: update run: %w", err)
	}
	return nil
}

// ListRuns enumerates the run ID set and filters client-side. Fine for
// operational listing; not meant for analytics over large histories.
func (s *Store) ListRuns(ctx context.Context, opts run.ListOpts) ([]*run.TestRun, error) {
	ids, err := s.client.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pilot/redis: list run ids: %w", err)
	}

	result := make([]*run.TestRun, 0, len(ids))
	for _, rID := range ids {
		r, err := s.getRunByKey(ctx, runKey(rID))
		if err == pilot.ErrRunNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.TenantID != "" && r.TenantID != opts.TenantID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result = append(result, r)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) getRunByKey(ctx context.Context, key string) (*run.TestRun, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, pilot.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pilot/redis: get run: %w", err)
	}
	var r run.TestRun
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("pilot/redis: unmarshal run: %w", err)
	}
	return &r, nil
}
