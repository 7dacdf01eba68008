package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// Dimension returns the embedding vector dimension, or 0 when unknown.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
