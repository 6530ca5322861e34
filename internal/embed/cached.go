package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings kept in memory.
const DefaultCacheSize = 1000

// CachedEmbedder wraps an Embedder with an LRU cache keyed on text and
// model name, so repeated queries skip the round trip to the model
// server entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, Result]
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
// size <= 0 uses DefaultCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, Result](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// LoadModel implements Embedder.
func (c *CachedEmbedder) LoadModel(ctx context.Context) error { return c.inner.LoadModel(ctx) }

// IsLoaded implements Embedder.
func (c *CachedEmbedder) IsLoaded() bool { return c.inner.IsLoaded() }

// EmbedText returns the cached result when present, otherwise computes
// and caches it.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) (Result, error) {
	key := c.cacheKey(text)
	if r, ok := c.cache.Get(key); ok {
		return r, nil
	}
	r, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(key, r)
	return r, nil
}

// EmbedImage is never cached: image bytes are not in hand here cheaply
// enough to make a cache key worthwhile, and images are never repeated
// within a single ingestion run the way queries are.
func (c *CachedEmbedder) EmbedImage(ctx context.Context, path string) (Result, error) {
	return c.inner.EmbedImage(ctx, path)
}

// EmbedBatch checks the cache for each text item individually, then
// delegates only the uncached items (plus every image item) to the
// inner embedder for maximum cache reuse.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]Result, len(items))
	var missIdx []int
	var missItems []Item

	for i, item := range items {
		if item.ImagePath != "" {
			missIdx = append(missIdx, i)
			missItems = append(missItems, item)
			continue
		}
		key := c.cacheKey(item.Text)
		if r, ok := c.cache.Get(key); ok {
			results[i] = r
			continue
		}
		missIdx = append(missIdx, i)
		missItems = append(missItems, item)
	}

	if len(missItems) == 0 {
		return results, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missItems)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = computed[j]
		if missItems[j].ImagePath == "" && computed[j].EmbeddingID != "" {
			c.cache.Add(c.cacheKey(missItems[j].Text), computed[j])
		}
	}

	return results, nil
}

// ModelName implements Embedder.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// ModelType implements Embedder.
func (c *CachedEmbedder) ModelType() ModelType { return c.inner.ModelType() }

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// SupportedContentTypes implements Embedder.
func (c *CachedEmbedder) SupportedContentTypes() []ContentType { return c.inner.SupportedContentTypes() }

// Cleanup implements Embedder.
func (c *CachedEmbedder) Cleanup() error { return c.inner.Cleanup() }

// Inner returns the wrapped embedder, for callers that need
// embedder-specific behaviour outside the Embedder interface.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }
