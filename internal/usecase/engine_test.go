package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quoterag/config"
	"quoterag/internal/adapter/embedding"
	"quoterag/internal/adapter/memstore"
	"quoterag/internal/adapter/retriever"
	"quoterag/internal/adapter/store"
	"quoterag/internal/domain"
	"quoterag/internal/metrics"
	"quoterag/internal/port"
)

func exampleRecords() []domain.QuoteRecord {
	return []domain.QuoteRecord{
		{ID: "1", Text: "Lead from the front.", Embedding: []float64{1, 0}},
		{ID: "2", Text: "Rest is productive.", Embedding: []float64{0, 1}},
		{ID: "3", Text: "Balance ambition with patience.", Embedding: []float64{0.7, 0.7}},
	}
}

func newTestEngine(t *testing.T, records []domain.QuoteRecord, emb *mockEmbedder, gen *mockGenerator, mutate func(*config.RetrieveConfig)) *Engine {
	t.Helper()
	cfg := config.DefaultConfig().Retrieve
	cfg.TopK = 2
	if mutate != nil {
		mutate(&cfg)
	}
	vs := store.NewVectorStore(context.Background(), memstore.NewMemoryStore(records...), zap.NewNop())

	// A nil *mockGenerator must become a nil interface, not a typed nil.
	var g port.Generator
	if gen != nil {
		g = gen
	}
	return NewEngine(cfg, vs, emb, g, retriever.NewExactRanker(), WithLogger(zap.NewNop()))
}

func TestSearch_Generated(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, []string{"leadership"}).Return([][]float64{{1, 0}}, nil).Once()
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, "leadership", mock.MatchedBy(func(m []domain.RankedMatch) bool {
		return len(m) == 2 && m[0].ID == "1" && m[1].ID == "3"
	})).Return("  Both quotes are about leading.  ", nil).Once()

	e := newTestEngine(t, exampleRecords(), emb, gen, nil)
	res := e.Search(context.Background(), "  leadership ", true)

	quotes, narrative, ok := res.Succeeded()
	require.True(t, ok)
	assert.Equal(t, "leadership", res.Topic)
	require.Len(t, quotes, 2)
	assert.Equal(t, "1", quotes[0].ID)
	assert.InDelta(t, 1.0, quotes[0].Similarity, 1e-9)
	assert.Equal(t, "3", quotes[1].ID)
	assert.InDelta(t, math.Sqrt2/2, quotes[1].Similarity, 1e-6)
	require.NotNil(t, narrative)
	assert.Equal(t, domain.NarrativeGenerated, narrative.Source)
	assert.Equal(t, "Both quotes are about leading.", narrative.Text)

	emb.AssertExpectations(t)
	gen.AssertExpectations(t)
}

func TestSearch_GenerationFailureFallsBack(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{"provider error", "", &domain.ProviderError{Provider: "openai", Op: domain.OpGeneration, Status: 503, Message: "unavailable"}},
		{"timeout", "", domain.NewTransportError("openai", domain.OpGeneration, context.DeadlineExceeded)},
		{"plain error", "", errors.New("socket closed")},
		{"empty text", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &mockEmbedder{}
			emb.On("Embed", mock.Anything, mock.Anything).Return([][]float64{{1, 0}}, nil)
			gen := &mockGenerator{}
			gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tt.text, tt.err)

			res := newTestEngine(t, exampleRecords(), emb, gen, nil).Search(context.Background(), "leadership", true)

			quotes, narrative, ok := res.Succeeded()
			require.True(t, ok, "generation problems must never fail the search")
			assert.NotEmpty(t, quotes)
			require.NotNil(t, narrative)
			assert.Equal(t, domain.NarrativeFallback, narrative.Source)
			assert.Equal(t, FormatFallback("leadership", quotes), narrative.Text)
		})
	}
}

func TestSearch_NoGeneratorUsesFallback(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return([][]float64{{1, 0}}, nil)

	res := newTestEngine(t, exampleRecords(), emb, nil, nil).Search(context.Background(), "leadership", true)

	_, narrative, ok := res.Succeeded()
	require.True(t, ok)
	require.NotNil(t, narrative)
	assert.Equal(t, domain.NarrativeFallback, narrative.Source)
	assert.True(t, strings.HasPrefix(narrative.Text, "Here are the top quotes related to 'leadership':"))
}

func TestSearch_NarrativeNotRequested(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return([][]float64{{1, 0}}, nil)
	gen := &mockGenerator{}

	res := newTestEngine(t, exampleRecords(), emb, gen, nil).Search(context.Background(), "leadership", false)

	quotes, narrative, ok := res.Succeeded()
	require.True(t, ok)
	assert.Len(t, quotes, 2)
	assert.Nil(t, narrative, "narrative must be omitted, not degraded")
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_Idempotent(t *testing.T) {
	emb := embedding.NewMockEmbedder(64)
	records := make([]domain.QuoteRecord, 0, 4)
	for i, text := range []string{"lead the team", "rest and recover", "team work wins", "patience pays"} {
		vecs, err := emb.Embed(context.Background(), []string{text})
		require.NoError(t, err)
		records = append(records, domain.QuoteRecord{ID: string(rune('a' + i)), Text: text, Embedding: vecs[0]})
	}
	vs := store.NewVectorStore(context.Background(), memstore.NewMemoryStore(records...), nil)
	cfg := config.DefaultConfig().Retrieve
	e := NewEngine(cfg, vs, emb, nil, retriever.NewExactRanker())

	first := e.Search(context.Background(), "team", false)
	second := e.Search(context.Background(), "team", false)

	require.True(t, first.Success)
	require.True(t, second.Success)
	require.Equal(t, len(first.Quotes), len(second.Quotes))
	for i := range first.Quotes {
		assert.Equal(t, first.Quotes[i].ID, second.Quotes[i].ID)
		assert.InDelta(t, first.Quotes[i].Similarity, second.Quotes[i].Similarity, 1e-9)
	}
}

func TestSearch_BlankTopic(t *testing.T) {
	emb := &mockEmbedder{}
	res := newTestEngine(t, exampleRecords(), emb, nil, nil).Search(context.Background(), "   ", true)

	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindValidation, serr.Kind)
	assert.NotEmpty(t, serr.Message)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestSearch_TopicTooLong(t *testing.T) {
	emb := &mockEmbedder{}
	e := newTestEngine(t, exampleRecords(), emb, nil, func(c *config.RetrieveConfig) { c.MaxTopicLength = 5 })

	res := e.Search(context.Background(), "leadership", true)
	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindValidation, serr.Kind)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestSearch_NotReady(t *testing.T) {
	emb := &mockEmbedder{}
	res := newTestEngine(t, nil, emb, nil, nil).Search(context.Background(), "leadership", true)

	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindNotReady, serr.Kind)
	assert.Empty(t, res.Quotes)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).
		Return(nil, domain.NewTransportError("openai", domain.OpEmbedding, context.DeadlineExceeded))
	gen := &mockGenerator{}

	res := newTestEngine(t, exampleRecords(), emb, gen, nil).Search(context.Background(), "leadership", true)

	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindEmbeddingProvider, serr.Kind)
	assert.True(t, serr.Retryable)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_EmbeddingPlainErrorIsProviderKind(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	res := newTestEngine(t, exampleRecords(), emb, nil, nil).Search(context.Background(), "leadership", true)

	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindEmbeddingProvider, serr.Kind)
	assert.NotContains(t, serr.Message, "connection refused")
}

func TestSearch_DimensionMismatch(t *testing.T) {
	records := []domain.QuoteRecord{
		{ID: "1", Text: "a", Embedding: []float64{1, 0, 0}},
		{ID: "2", Text: "b", Embedding: []float64{0, 1, 0}},
	}
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return([][]float64{{1, 0}}, nil)

	res := newTestEngine(t, records, emb, nil, nil).Search(context.Background(), "leadership", true)

	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindDimensionMismatch, serr.Kind)
	assert.False(t, serr.Retryable)
}

func TestSearch_NoMatchesNarrative(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return([][]float64{{-1, -1}}, nil)
	gen := &mockGenerator{}

	e := newTestEngine(t, exampleRecords(), emb, gen, func(c *config.RetrieveConfig) { c.MinSimilarity = 0.5 })
	res := e.Search(context.Background(), "chaos", true)

	quotes, narrative, ok := res.Succeeded()
	require.True(t, ok)
	assert.Empty(t, quotes)
	require.NotNil(t, narrative)
	assert.Equal(t, domain.NarrativeNoMatches, narrative.Source)
	assert.Equal(t, "I couldn't find any quotes related to 'chaos'. Please try a different topic.", narrative.Text)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchWithOptions_TopK(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return([][]float64{{1, 0}}, nil)
	e := newTestEngine(t, exampleRecords(), emb, nil, nil)

	res := e.SearchWithOptions(context.Background(), "leadership", SearchOptions{TopK: 3})
	require.True(t, res.Success)
	assert.Len(t, res.Quotes, 3)

	res = e.SearchWithOptions(context.Background(), "leadership", SearchOptions{TopK: 500})
	serr, failed := res.Failed()
	require.True(t, failed)
	assert.Equal(t, domain.KindValidation, serr.Kind)
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

func TestEngine_Reload(t *testing.T) {
	src := memstore.NewMemoryStore()
	vs := store.NewVectorStore(context.Background(), src, nil)
	inv := &countingInvalidator{}
	rec := metrics.New(prometheus.NewRegistry())
	e := NewEngine(config.DefaultConfig().Retrieve, vs, &mockEmbedder{}, nil, retriever.NewExactRanker(),
		WithInvalidator(inv), WithMetrics(rec))

	assert.False(t, e.IsReady())
	assert.Equal(t, 0, e.Count())

	require.NoError(t, src.Save(context.Background(), exampleRecords(), port.StoreMeta{}))
	info, err := e.Reload(context.Background())
	require.NoError(t, err)

	assert.True(t, info.Ready)
	assert.True(t, e.IsReady())
	assert.Equal(t, 3, e.Count())
	assert.Equal(t, 1, inv.n)
	assert.Equal(t, 2, e.Info().Dimension)
}
