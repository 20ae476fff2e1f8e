package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/probelab/pilot/persona"
)

// SavePersona stores the persona as JSON and registers its ID.
func (s *Store) SavePersona(ctx context.Context, def *persona.Definition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("pilot/redis: marshal persona: %w", err)
	}

	pID := def.ID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, personaKey(pID), data, 0)
	pipe.SAdd(ctx, personaIDsKey, pID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pilot/redis: save persona: %w", err)
	}
	return nil
}

// ListPersonas enumerates all stored persona definitions.
func (s *Store) ListPersonas(ctx context.Context) ([]*persona.Definition, error) {
	ids, err := s.client.SMembers(ctx, personaIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pilot/redis: list persona ids: %w", err)
	}

	result := make([]*persona.Definition, 0, len(ids))
	for _, pID := range ids {
		data, err := s.client.Get(ctx, personaKey(pID)).Bytes()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pilot/redis: get persona: %w", err)
		}
		var def persona.Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("pilot/redis: unmarshal persona: %w", err)
		}
		result = append(result, &def)
	}
	return result, nil
}
