package port

import "quoterag/internal/domain"

// Ranker scores stored quotes against a query vector.
type Ranker interface {
	// Rank returns at most k matches ordered by descending similarity.
	// Ties keep the order of records.
	Rank(query []float64, records []domain.QuoteRecord, k int) ([]domain.RankedMatch, error)
}
