package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-docchat-be/pkg/rag/state"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docchat:checkpoint:"

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore keeps checkpoints for ttl after their last save; ttl <= 0 keeps them forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (*state.TurnState, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get checkpoint: %w", err)
	}
	return Decode(data)
}

func (s *RedisStore) Save(ctx context.Context, threadID string, st *state.TurnState) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+threadID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+threadID).Err(); err != nil {
		return fmt.Errorf("redis del checkpoint: %w", err)
	}
	return nil
}
