package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quoterag/internal/domain"
	"quoterag/internal/metrics"
	"quoterag/internal/port"
)

// EmbeddingCache is an LRU cache of query embeddings with a TTL.
// Invalidate bumps a generation counter so entries stored before a
// store reload are never served after it.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	gen     uint64
	now     func() time.Time
}

type cacheEntry struct {
	vector    []float64
	timestamp time.Time
	gen       uint64
}

func NewEmbeddingCache(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EmbeddingCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Get returns a copy of the cached vector.
func (c *EmbeddingCache) Get(model, text string) ([]float64, bool) {
	key := cacheKey(model, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl || entry.gen != c.gen {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return append([]float64(nil), entry.vector...), true
}

func (c *EmbeddingCache) Put(model, text string, vector []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(model, text, vector)
}

// Generation returns the current invalidation generation.
func (c *EmbeddingCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// PutAt stores vector only if no Invalidate happened since gen was read.
func (c *EmbeddingCache) PutAt(gen uint64, model, text string, vector []float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.put(model, text, vector)
	return true
}

func (c *EmbeddingCache) put(model, text string, vector []float64) {
	key := cacheKey(model, text)
	entry := &cacheEntry{
		vector:    append([]float64(nil), vector...),
		timestamp: c.now(),
		gen:       c.gen,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
}

func (c *EmbeddingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.gen++
}

func (c *EmbeddingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *EmbeddingCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *EmbeddingCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *EmbeddingCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedEmbedder serves repeated texts from an EmbeddingCache and
// collapses concurrent identical single-text requests into one call.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *EmbeddingCache
	group    singleflight.Group
	metrics  *metrics.Recorder
}

func NewCachedEmbedder(embedder port.Embedder, cache *EmbeddingCache, rec *metrics.Recorder) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
		metrics:  rec,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	model := e.embedder.ModelName()
	out := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, hit := e.cache.Get(model, text); hit {
			e.metrics.CacheLookup("hit")
			out[i] = vec
			continue
		}
		e.metrics.CacheLookup("miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	if len(missTexts) == 1 {
		vec, err := e.embedOne(ctx, model, missTexts[0])
		if err != nil {
			return nil, err
		}
		out[missIdx[0]] = vec
		return out, nil
	}

	gen := e.cache.Generation()
	vecs, err := e.embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, noEmbedding(model)
	}
	for j, vec := range vecs {
		e.cache.PutAt(gen, model, missTexts[j], vec)
		out[missIdx[j]] = vec
	}
	return out, nil
}

func (e *CachedEmbedder) embedOne(ctx context.Context, model, text string) ([]float64, error) {
	v, err, shared := e.group.Do(cacheKey(model, text), func() (interface{}, error) {
		gen := e.cache.Generation()
		vecs, err := e.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return nil, noEmbedding(model)
		}
		e.cache.PutAt(gen, model, text, vecs[0])
		return vecs[0], nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.metrics.CacheLookup("shared")
	}
	return append([]float64(nil), v.([]float64)...), nil
}

func noEmbedding(model string) *domain.ProviderError {
	return &domain.ProviderError{Provider: model, Op: domain.OpEmbedding, Message: "no embedding returned"}
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}

// Invalidate drops all cached vectors.
func (e *CachedEmbedder) Invalidate() {
	e.cache.Invalidate()
}
