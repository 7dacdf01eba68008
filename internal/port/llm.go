package port

import (
	"context"

	"quoterag/internal/domain"
)

// Generator writes a narrative explaining how the matched quotes relate to a topic.
type Generator interface {
	// Generate returns narrative text for the ordered matches. Every match
	// must be referenced exactly once by its id.
	Generate(ctx context.Context, topic string, matches []domain.RankedMatch) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
