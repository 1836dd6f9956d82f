package embedding

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nestauk/discovery-genai/internal/llm"
)

// Cache remembers vectors per (model, text) so repeated texts are embedded
// once. Only misses are sent downstream. Callers get their own copies.
type Cache struct {
	next  llm.Embedder
	store *cache.Cache
}

var _ llm.Embedder = (*Cache)(nil)

// NewCache wraps next with a TTL cache. ttl <= 0 keeps entries forever.
func NewCache(next llm.Embedder, ttl time.Duration) *Cache {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 2 * ttl
	}
	return &Cache{next: next, store: cache.New(expiration, cleanup)}
}

func (c *Cache) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   = make(map[string][]int)
	)
	for i, t := range texts {
		if v, ok := c.store.Get(cacheKey(model, t)); ok {
			out[i] = slices.Clone(v.([]float32))
			continue
		}
		if _, pending := missIdx[t]; !pending {
			missTexts = append(missTexts, t)
		}
		missIdx[t] = append(missIdx[t], i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts, model)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, &llm.EmbeddingServiceError{
			Provider: "cache",
			Model:    model,
			Reason:   "downstream returned a different number of vectors than inputs",
		}
	}
	for j, t := range missTexts {
		c.store.SetDefault(cacheKey(model, t), slices.Clone(vecs[j]))
		for _, i := range missIdx[t] {
			out[i] = slices.Clone(vecs[j])
		}
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

func (c *Cache) Name() string {
	if n, ok := c.next.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "cache"
}

func cacheKey(model, text string) string {
	return model + "\x00" + text
}
