package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes embeddings by task type and text. Repeated questions
// in a thread skip the embedding round trip.
type CachedProvider struct {
	next  EmbeddingProvider
	cache *cache.Cache
}

func NewCachedProvider(next EmbeddingProvider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (c *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	key := cacheKey(text, taskType)
	if x, found := c.cache.Get(key); found {
		return x.(*EmbeddingResponse), nil
	}

	resp, err := c.next.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, resp, cache.DefaultExpiration)
	return resp, nil
}

func cacheKey(text, taskType string) string {
	sum := sha256.Sum256([]byte(taskType + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
