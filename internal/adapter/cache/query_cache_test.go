package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quoterag/internal/domain"
)

type countingEmbedder struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestEmbeddingCache_LRU(t *testing.T) {
	c := NewEmbeddingCache(2, time.Minute)
	c.Put("m", "a", []float64{1})
	c.Put("m", "b", []float64{2})

	if _, ok := c.Get("m", "a"); !ok {
		t.Fatal("expected hit for a")
	}
	c.Put("m", "c", []float64{3})

	if _, ok := c.Get("m", "b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if _, ok := c.Get("m", "a"); !ok {
		t.Error("a should survive eviction")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestEmbeddingCache_TTL(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("m", "a", []float64{1})
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("m", "a"); ok {
		t.Error("expired entry must not be served")
	}
}

func TestEmbeddingCache_KeyedByModel(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	c.Put("m1", "a", []float64{1})

	if _, ok := c.Get("m2", "a"); ok {
		t.Error("vectors from another model must not be served")
	}
}

func TestEmbeddingCache_Invalidate(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	c.Put("m", "a", []float64{1})
	c.Invalidate()

	if _, ok := c.Get("m", "a"); ok {
		t.Error("invalidated entry must not be served")
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	c.Put("m", "a", []float64{1, 2})

	v, _ := c.Get("m", "a")
	v[0] = 99
	again, _ := c.Get("m", "a")
	if again[0] != 1 {
		t.Error("callers must not be able to mutate cached vectors")
	}
}

func TestCachedEmbedder_Hits(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, NewEmbeddingCache(10, time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		vecs, err := e.Embed(ctx, []string{"success"})
		if err != nil {
			t.Fatal(err)
		}
		if vecs[0][0] != 7 {
			t.Errorf("unexpected vector %v", vecs[0])
		}
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}

	e.Invalidate()
	if _, err := e.Embed(ctx, []string{"success"}); err != nil {
		t.Fatal(err)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("expected a new upstream call after invalidate, got %d", n)
	}
}

func TestCachedEmbedder_MixedBatch(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, NewEmbeddingCache(10, time.Minute), nil)
	ctx := context.Background()

	if _, err := e.Embed(ctx, []string{"bb"}); err != nil {
		t.Fatal(err)
	}
	vecs, err := e.Embed(ctx, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("position %d: expected %v, got %v", i, want, vecs[i][0])
		}
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("expected 2 upstream calls, got %d", n)
	}
}

func TestCachedEmbedder_CollapsesConcurrentCalls(t *testing.T) {
	inner := &countingEmbedder{delay: 50 * time.Millisecond}
	e := NewCachedEmbedder(inner, NewEmbeddingCache(10, time.Minute), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Embed(context.Background(), []string{"leadership"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := inner.calls.Load(); n > 2 {
		t.Errorf("expected concurrent identical requests to share a call, got %d calls", n)
	}
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	e := NewCachedEmbedder(inner, NewEmbeddingCache(10, time.Minute), nil)

	for i := 0; i < 2; i++ {
		if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("failures must not be cached, got %d calls", n)
	}
}

type shortEmbedder struct {
	onEmbed func()
}

func (e *shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.onEmbed != nil {
		e.onEmbed()
	}
	return [][]float64{}, nil
}

func (e *shortEmbedder) Dimension() int    { return 2 }
func (e *shortEmbedder) ModelName() string { return "short" }

func TestCachedEmbedder_MissingVectors(t *testing.T) {
	e := NewCachedEmbedder(&shortEmbedder{}, NewEmbeddingCache(10, time.Minute), nil)

	for _, texts := range [][]string{{"x"}, {"x", "y"}} {
		_, err := e.Embed(context.Background(), texts)
		var perr *domain.ProviderError
		if !errors.As(err, &perr) {
			t.Fatalf("expected ProviderError for %d texts, got %v", len(texts), err)
		}
		if perr.Op != domain.OpEmbedding || perr.Retryable() {
			t.Errorf("expected permanent embedding error, got %+v", perr)
		}
	}
}

type invalidatingEmbedder struct {
	countingEmbedder
	onEmbed func()
}

func (e *invalidatingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.onEmbed()
	return e.countingEmbedder.Embed(ctx, texts)
}

func TestCachedEmbedder_InvalidateDuringCall(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	inner := &invalidatingEmbedder{onEmbed: c.Invalidate}
	e := NewCachedEmbedder(inner, c, nil)

	if _, err := e.Embed(context.Background(), []string{"leadership"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("counting", "leadership"); ok {
		t.Error("vector computed before an invalidation must not be cached")
	}

	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 0 {
		t.Errorf("batch vectors computed before an invalidation must not be cached, size %d", c.Size())
	}
}

func TestEmbeddingCache_PutAtStaleGeneration(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	gen := c.Generation()
	c.Invalidate()

	if c.PutAt(gen, "m", "a", []float64{1}) {
		t.Error("expected stale put to be dropped")
	}
	if !c.PutAt(c.Generation(), "m", "a", []float64{1}) {
		t.Error("expected current put to be stored")
	}
	if _, ok := c.Get("m", "a"); !ok {
		t.Error("expected hit after current put")
	}
}
