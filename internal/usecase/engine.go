package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quoterag/config"
	"quoterag/internal/adapter/store"
	"quoterag/internal/domain"
	"quoterag/internal/metrics"
	"quoterag/internal/port"
)

const maxTopK = 50

// QuoteStore serves immutable snapshots of the corpus.
type QuoteStore interface {
	Snapshot() *store.Snapshot
	Reload(ctx context.Context) (domain.StoreInfo, error)
}

// Invalidator is implemented by caches that must be dropped after a reload.
type Invalidator interface {
	Invalidate()
}

// Engine answers topic searches: it checks readiness, embeds the topic,
// ranks the corpus and optionally writes a narrative, degrading to a
// deterministic fallback when generation is unavailable.
type Engine struct {
	store          QuoteStore
	embedder       port.Embedder
	generator      port.Generator // nil means always use the fallback
	ranker         port.Ranker
	topK           int
	minSimilarity  float64
	maxTopicLength int
	invalidators   []Invalidator
	logger         *zap.Logger
	metrics        *metrics.Recorder
	validate       *validator.Validate
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(rec *metrics.Recorder) EngineOption {
	return func(e *Engine) { e.metrics = rec }
}

// WithInvalidator registers a cache to drop whenever the store reloads.
func WithInvalidator(inv Invalidator) EngineOption {
	return func(e *Engine) { e.invalidators = append(e.invalidators, inv) }
}

// NewEngine creates an engine. generator may be nil.
func NewEngine(
	cfg config.RetrieveConfig,
	quoteStore QuoteStore,
	embedder port.Embedder,
	generator port.Generator,
	ranker port.Ranker,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:          quoteStore,
		embedder:       embedder,
		generator:      generator,
		ranker:         ranker,
		topK:           cfg.TopK,
		minSimilarity:  cfg.MinSimilarity,
		maxTopicLength: cfg.MaxTopicLength,
		logger:         zap.NewNop(),
		validate:       validator.New(),
	}
	if e.topK < 1 {
		e.topK = 3
	}
	if e.maxTopicLength < 1 {
		e.maxTopicLength = 500
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics.StoreRecords(quoteStore.Snapshot().Count())
	return e
}

// SearchOptions adjusts a single search.
type SearchOptions struct {
	IncludeNarrative bool
	TopK             int // 0 uses the configured default
}

// Search finds the quotes closest to topic. includeNarrative=false omits
// the narrative entirely, which is distinct from a degraded narrative.
func (e *Engine) Search(ctx context.Context, topic string, includeNarrative bool) domain.SearchResult {
	return e.SearchWithOptions(ctx, topic, SearchOptions{IncludeNarrative: includeNarrative})
}

func (e *Engine) SearchWithOptions(ctx context.Context, topic string, opts SearchOptions) domain.SearchResult {
	start := time.Now()
	topic = strings.TrimSpace(topic)
	log := e.logger.With(zap.String("request_id", uuid.NewString()), zap.String("topic", topic))

	result := e.search(ctx, topic, opts, log)

	outcome := "success"
	if serr, failed := result.Failed(); failed {
		outcome = string(serr.Kind)
		log.Warn("search failed",
			zap.String("kind", string(serr.Kind)),
			zap.Bool("retryable", serr.Retryable),
			zap.Error(errors.Unwrap(serr)),
			zap.Duration("duration", time.Since(start)))
	} else {
		fields := []zap.Field{zap.Int("matches", len(result.Quotes)), zap.Duration("duration", time.Since(start))}
		if result.Narrative != nil {
			fields = append(fields, zap.String("narrative_source", string(result.Narrative.Source)))
		}
		log.Info("search completed", fields...)
	}
	e.metrics.ObserveSearch(outcome, time.Since(start))
	return result
}

func (e *Engine) search(ctx context.Context, topic string, opts SearchOptions, log *zap.Logger) domain.SearchResult {
	k := e.topK
	if opts.TopK != 0 {
		k = opts.TopK
	}
	if err := e.validateRequest(topic, k); err != nil {
		return domain.NewFailure(topic, err)
	}

	snap := e.store.Snapshot()
	if !snap.IsReady() {
		return domain.NewFailure(topic, fmt.Errorf("%w: %s", domain.ErrNotReady, snap.Info().Reason))
	}

	query, err := e.embedTopic(ctx, topic)
	if err != nil {
		return domain.NewFailure(topic, err)
	}

	matches, err := e.ranker.Rank(query, snap.Records(), k)
	if err != nil {
		return domain.NewFailure(topic, err)
	}
	matches = e.filter(matches)

	if !opts.IncludeNarrative {
		return domain.NewSuccess(topic, matches, nil)
	}

	if len(matches) == 0 {
		e.metrics.Narrative(string(domain.NarrativeNoMatches))
		return domain.NewSuccess(topic, matches, &domain.Narrative{
			Text:   NoMatchesText(topic),
			Source: domain.NarrativeNoMatches,
		})
	}

	narrative := e.narrate(ctx, topic, matches, log)
	e.metrics.Narrative(string(narrative.Source))
	return domain.NewSuccess(topic, matches, narrative)
}

func (e *Engine) validateRequest(topic string, k int) error {
	if err := e.validate.Var(topic, fmt.Sprintf("required,max=%d", e.maxTopicLength)); err != nil {
		if topic == "" {
			return domain.NewValidationError("topic", "must not be empty")
		}
		return domain.NewValidationError("topic", fmt.Sprintf("must be at most %d characters", e.maxTopicLength))
	}
	if err := e.validate.Var(k, fmt.Sprintf("gte=1,lte=%d", maxTopK)); err != nil {
		return domain.NewValidationError("top_k", fmt.Sprintf("must be between 1 and %d", maxTopK))
	}
	return nil
}

func (e *Engine) embedTopic(ctx context.Context, topic string) ([]float64, error) {
	vecs, err := e.embedder.Embed(ctx, []string{topic})
	if err != nil {
		var perr *domain.ProviderError
		if !errors.As(err, &perr) {
			perr = domain.NewTransportError(e.embedder.ModelName(), domain.OpEmbedding, err)
		}
		e.metrics.ProviderCall(string(domain.OpEmbedding), providerStatus(perr))
		return nil, perr
	}
	e.metrics.ProviderCall(string(domain.OpEmbedding), "ok")
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, &domain.ProviderError{
			Provider: e.embedder.ModelName(),
			Op:       domain.OpEmbedding,
			Message:  "no embedding returned",
		}
	}
	return vecs[0], nil
}

func (e *Engine) filter(matches []domain.RankedMatch) []domain.RankedMatch {
	if e.minSimilarity <= 0 {
		return matches
	}
	filtered := make([]domain.RankedMatch, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= e.minSimilarity {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// narrate never fails: any generator problem yields the fallback text.
func (e *Engine) narrate(ctx context.Context, topic string, matches []domain.RankedMatch, log *zap.Logger) *domain.Narrative {
	fallback := &domain.Narrative{Text: FormatFallback(topic, matches), Source: domain.NarrativeFallback}
	if e.generator == nil {
		return fallback
	}

	text, err := e.generator.Generate(ctx, topic, matches)
	if err != nil {
		var perr *domain.ProviderError
		status := "error"
		if errors.As(err, &perr) {
			status = providerStatus(perr)
		}
		e.metrics.ProviderCall(string(domain.OpGeneration), status)
		log.Warn("generation failed, using fallback narrative", zap.Error(err))
		return fallback
	}
	e.metrics.ProviderCall(string(domain.OpGeneration), "ok")

	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("generation returned empty text, using fallback narrative")
		return fallback
	}
	return &domain.Narrative{Text: text, Source: domain.NarrativeGenerated}
}

func providerStatus(perr *domain.ProviderError) string {
	if perr.Timeout {
		return "timeout"
	}
	return "error"
}

// IsReady reports whether searches can be served.
func (e *Engine) IsReady() bool {
	return e.store.Snapshot().IsReady()
}

// Count returns the number of quotes being served.
func (e *Engine) Count() int {
	return e.store.Snapshot().Count()
}

// Info describes the serving snapshot.
func (e *Engine) Info() domain.StoreInfo {
	return e.store.Snapshot().Info()
}

// Reload swaps in a fresh snapshot and drops cached query embeddings.
func (e *Engine) Reload(ctx context.Context) (domain.StoreInfo, error) {
	info, err := e.store.Reload(ctx)
	e.metrics.StoreRecords(info.Count)
	if err != nil {
		return info, err
	}
	for _, inv := range e.invalidators {
		inv.Invalidate()
	}
	e.logger.Info("store reloaded", zap.Int("count", info.Count), zap.Bool("ready", info.Ready))
	return info, nil
}
