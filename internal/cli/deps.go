package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quoterag/config"
	"quoterag/internal/adapter/cache"
	"quoterag/internal/adapter/embedding"
	"quoterag/internal/adapter/generation"
	"quoterag/internal/adapter/retriever"
	"quoterag/internal/adapter/store"
	"quoterag/internal/metrics"
	"quoterag/internal/port"
	"quoterag/internal/usecase"
)

// storeSource returns the read side of the configured store.
func storeSource(cfg *config.Config, dir string) port.CorpusSource {
	return store.NewSource(cfg.Store.Format, cfg.StorePath(dir))
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	emb, err := embedding.New(cfg.Embedding, config.APIKey(cfg.Embedding.APIKeyEnv), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return emb, nil
}

// newGenerator returns nil when generation is disabled or cannot be configured;
// searches then use the fallback narrative.
func newGenerator(cfg *config.Config) port.Generator {
	gen, err := generation.New(cfg.Generation, config.APIKey(cfg.Generation.APIKeyEnv), logger)
	if err != nil {
		logger.Warn("narrative generation unavailable, using fallback narratives", zap.Error(err))
		return nil
	}
	return gen
}

// buildEngine wires the serving path. reg may be nil.
func buildEngine(ctx context.Context, cfg *config.Config, dir string, reg prometheus.Registerer) (*usecase.Engine, error) {
	var rec *metrics.Recorder
	if reg != nil {
		rec = metrics.New(reg)
	}

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	opts := []usecase.EngineOption{usecase.WithLogger(logger), usecase.WithMetrics(rec)}
	if cfg.Cache.Enabled {
		cached := cache.NewCachedEmbedder(emb, cache.NewEmbeddingCache(cfg.Cache.MaxSize, cfg.Cache.TTL), rec)
		opts = append(opts, usecase.WithInvalidator(cached))
		emb = cached
	}

	vs := store.NewVectorStore(ctx, storeSource(cfg, dir), logger)
	return usecase.NewEngine(cfg.Retrieve, vs, emb, newGenerator(cfg), retriever.NewExactRanker(), opts...), nil
}
