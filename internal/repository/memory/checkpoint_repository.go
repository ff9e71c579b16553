package memory

import (
	"context"
	"time"

	"ai-docchat-be/pkg/checkpoint"
	"ai-docchat-be/pkg/rag/state"

	"github.com/patrickmn/go-cache"
)

// CheckpointRepository keeps encoded checkpoints in process memory. Entries
// never expire unless a ttl is given; storing bytes keeps callers from sharing state.
type CheckpointRepository struct {
	cache *cache.Cache
}

func NewCheckpointRepository(ttl time.Duration) *CheckpointRepository {
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	return &CheckpointRepository{
		cache: cache.New(expiration, 10*time.Minute),
	}
}

var _ checkpoint.Store = (*CheckpointRepository)(nil)

func (r *CheckpointRepository) Load(_ context.Context, threadID string) (*state.TurnState, error) {
	if x, found := r.cache.Get(threadID); found {
		return checkpoint.Decode(x.([]byte))
	}
	return nil, nil
}

func (r *CheckpointRepository) Save(_ context.Context, threadID string, s *state.TurnState) error {
	data, err := checkpoint.Encode(s)
	if err != nil {
		return err
	}
	r.cache.Set(threadID, data, cache.DefaultExpiration)
	return nil
}

func (r *CheckpointRepository) Delete(_ context.Context, threadID string) error {
	r.cache.Delete(threadID)
	return nil
}
