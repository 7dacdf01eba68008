package port

import (
	"context"
	"time"

	"quoterag/internal/domain"
)

// CorpusSource supplies the persisted quote records a vector store is built from.
type CorpusSource interface {
	// Load reads every record in stored order.
	Load(ctx context.Context) ([]domain.QuoteRecord, error)

	// Describe names the source for status reporting.
	Describe() string
}

// CorpusSink persists prepared quote records.
type CorpusSink interface {
	// Save replaces the stored corpus with records.
	Save(ctx context.Context, records []domain.QuoteRecord, meta StoreMeta) error
}

// MetaReader is implemented by stores that remember how they were built.
type MetaReader interface {
	Meta() (StoreMeta, bool, error)
}

// StoreMeta records the embedding model a store was prepared with.
type StoreMeta struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	BuiltAt   time.Time `json:"built_at"`
}
