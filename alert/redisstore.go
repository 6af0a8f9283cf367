package alert

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding notification state.
const DefaultRedisKey = "ciwatch:notification_state"

// RedisStore persists state in a redis hash of job name to run id.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore creates a store using the hash at key, or DefaultRedisKey.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements StateStore. A missing hash yields an empty state.
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis hgetall %s: %w", ErrStatePersistence, r.key, err)
	}
	return State(fields), nil
}

// Save replaces the hash in a single MULTI/EXEC transaction.
func (r *RedisStore) Save(ctx context.Context, s State) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(s) > 0 {
			values := make(map[string]any, len(s))
			for job, runID := range s {
				values[job] = runID
			}
			pipe.HSet(ctx, r.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis replace %s: %w", ErrStatePersistence, r.key, err)
	}
	return nil
}
