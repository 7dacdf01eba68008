package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"quoterag/config"
	"quoterag/internal/port"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig, apiKey string, logger *zap.Logger) (port.Embedder, error) {
	opts := Options{
		Provider:  cfg.Provider,
		APIKey:    apiKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		BatchSize: cfg.BatchSize,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(opts)
	case "deepseek":
		return NewDeepSeekEmbedder(opts)
	case "jina":
		return NewJinaEmbedder(opts)
	case "ollama":
		return NewOllamaEmbedder(opts)
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
