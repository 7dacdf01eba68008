package generation

import (
	"go.uber.org/zap"

	"quoterag/config"
	"quoterag/internal/port"
)

// New builds the narrative generator described by cfg.
// It returns a nil generator when generation is disabled.
func New(cfg config.GenerationConfig, apiKey string, logger *zap.Logger) (port.Generator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := NewChatClient(Options{
		Provider:    cfg.Provider,
		APIKey:      apiKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return NewNarrator(client), nil
}
