package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/selector"
)

// Selector hash fields. The static part of the entry travels as one
// JSON blob; the counters and timestamps live as separate fields so
// they can be updated atomically without a read-modify-write.
const (
	selFieldData        = "data"
	selFieldSuccess     = "success_count"
	selFieldFailure     = "failure_count"
	selFieldLastUsed    = "last_used_at"
	selFieldLastSuccess = "last_success_at"
)

// GetSelector retrieves the entry for key.
func (s *Store) GetSelector(ctx context.Context, key selector.Key) (*selector.CachedSelector, error) {
	fields, err := s.client.HGetAll(ctx, selKey(key.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("pilot/redis: get selector: %w", err)
	}
	if len(fields) == 0 {
		return nil, pilot.ErrSelectorNotFound
	}
	return selectorFromFields(fields)
}

// PutSelector inserts or overwrites the entry for its key. An
// overwrite replaces the counters wholesale — the caller decides the
// fresh-hypothesis semantics.
func (s *Store) PutSelector(ctx context.Context, c *selector.CachedSelector) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("pilot/redis: marshal selector: %w", err)
	}

	composite := c.Key.String()
	fields := map[string]interface{}{
		selFieldData:     data,
		selFieldSuccess:  c.SuccessCount,
		selFieldFailure:  c.FailureCount,
		selFieldLastUsed: c.LastUsedAt.UTC().Format(time.RFC3339Nano),
	}
	if c.LastSuccessAt != nil {
		fields[selFieldLastSuccess] = c.LastSuccessAt.UTC().Format(time.RFC3339Nano)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, selKey(composite))
	pipe.HSet(ctx, selKey(composite), fields)
	pipe.SAdd(ctx, selIDsKey, composite)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pilot/redis: put selector: %w", err)
	}
	return nil
}

// RecordSelectorSuccess atomically increments the success counter via
// HIncrBy and stamps the usage timestamps.
func (s *Store) RecordSelectorSuccess(ctx context.Context, key selector.Key, at time.Time) error {
	k := selKey(key.String())
	exists, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("pilot/redis: selector exists: %w", err)
	}
	if exists == 0 {
		return pilot.ErrSelectorNotFound
	}

	stamp := at.UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, k, selFieldSuccess, 1)
	pipe.HSet(ctx, k, selFieldLastUsed, stamp, selFieldLastSuccess, stamp)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pilot/redis: record selector success: %w", err)
	}
	return nil
}

// RecordSelectorFailure atomically increments the failure counter via
// HIncrBy and stamps LastUsedAt.
func (s *Store) RecordSelectorFailure(ctx context.Context, key selector.Key, at time.Time) error {
	k := selKey(key.String())
	exists, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("pilot/redis: selector exists: %w", err)
	}
	if exists == 0 {
		return pilot.ErrSelectorNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, k, selFieldFailure, 1)
	pipe.HSet(ctx, k, selFieldLastUsed, at.UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pilot/redis: record selector failure: %w", err)
	}
	return nil
}

// DeleteSelector removes the entry for key.
func (s *Store) DeleteSelector(ctx context.Context, key selector.Key) error {
	composite := key.String()
	deleted, err := s.client.Del(ctx, selKey(composite)).Result()
	if err != nil {
		return fmt.Errorf("pilot/redis: delete selector: %w", err)
	}
	if deleted == 0 {
		return pilot.ErrSelectorNotFound
	}
	if err := s.client.SRem(ctx, selIDsKey, composite).Err(); err != nil {
		return fmt.Errorf("pilot/redis: unindex selector: %w", err)
	}
	return nil
}

// DeleteStaleSelectors enumerates the selector index and deletes
// entries whose LastUsedAt predates cutoff.
func (s *Store) DeleteStaleSelectors(ctx context.Context, cutoff time.Time) (int, error) {
	composites, err := s.client.SMembers(ctx, selIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pilot/redis: list selector keys: %w", err)
	}

	n := 0
	for _, composite := range composites {
		k := selKey(composite)
		raw, err := s.client.HGet(ctx, k, selFieldLastUsed).Result()
		if err == goredis.Nil {
			// Entry vanished; drop the dangling index member.
			_ = s.client.SRem(ctx, selIDsKey, composite).Err()
			continue
		}
		if err != nil {
			return n, fmt.Errorf("pilot/redis: read selector last_used_at: %w", err)
		}
		lastUsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil || !lastUsed.Before(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, k)
		pipe.SRem(ctx, selIDsKey, composite)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, fmt.Errorf("pilot/redis: delete stale selector: %w", err)
		}
		n++
	}
	return n, nil
}

func selectorFromFields(fields map[string]string) (*selector.CachedSelector, error) {
	var c selector.CachedSelector
	if err := json.Unmarshal([]byte(fields[selFieldData]), &c); err != nil {
		return nil, fmt.Errorf("pilot/redis: unmarshal selector: %w", err)
	}

	// Counter fields are authoritative over the JSON blob.
	if raw, ok := fields[selFieldSuccess]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			c.SuccessCount = v
		}
	}
	if raw, ok := fields[selFieldFailure]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			c.FailureCount = v
		}
	}
	if raw, ok := fields[selFieldLastUsed]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			c.LastUsedAt = t
		}
	}
	if raw, ok := fields[selFieldLastSuccess]; ok && raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			c.LastSuccessAt = &t
		}
	}
	return &c, nil
}
