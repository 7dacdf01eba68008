package retriever

import (
	"math"
	"sort"

	"quoterag/internal/domain"
)

// ExactRanker scores every record against the query with cosine similarity.
// A full scan is O(N·D); at the corpus sizes this serves (low thousands of
// quotes) it is faster than building an approximate index.
type ExactRanker struct{}

func NewExactRanker() *ExactRanker {
	return &ExactRanker{}
}

// Rank returns min(k, len(records)) matches sorted by descending similarity.
// Equal scores keep store order. Every record is checked against the query
// dimension before scoring; a mismatch fails the whole call.
func (r *ExactRanker) Rank(query []float64, records []domain.QuoteRecord, k int) ([]domain.RankedMatch, error) {
	if k < 1 {
		return nil, domain.NewValidationError("top_k", "must be at least 1")
	}
	if len(records) == 0 {
		return []domain.RankedMatch{}, nil
	}
	for _, rec := range records {
		if len(rec.Embedding) != len(query) {
			return nil, &domain.DimensionMismatchError{RecordID: rec.ID, Expected: len(query), Got: len(rec.Embedding)}
		}
	}

	matches := make([]domain.RankedMatch, len(records))
	for i, rec := range records {
		matches[i] = domain.RankedMatch{
			ID:         rec.ID,
			Text:       rec.Text,
			Similarity: CosineSimilarity(query, rec.Embedding),
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k:k], nil
}

// CosineSimilarity returns dot(a, b) / (|a|·|b|), clamped to [-1, 1].
// Zero-magnitude vectors, non-finite components and length mismatches
// yield 0, so the result is never NaN or Inf.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	dot, normA, normB := sums(a, b, 1, 1)
	if !isFinite(dot) || !isFinite(normA) || !isFinite(normB) || normA == 0 || normB == 0 {
		// Overflow or underflow in the squared sums: rescale both vectors
		// by their largest component and try again.
		maxA, okA := maxAbs(a)
		maxB, okB := maxAbs(b)
		if !okA || !okB || maxA == 0 || maxB == 0 {
			return 0
		}
		dot, normA, normB = sums(a, b, maxA, maxB)
		if normA == 0 || normB == 0 {
			return 0
		}
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// sums returns the dot product and squared norms of a/divA and b/divB.
func sums(a, b []float64, divA, divB float64) (dot, normA, normB float64) {
	for i := range a {
		x := a[i] / divA
		y := b[i] / divB
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot, normA, normB
}

// maxAbs returns the largest absolute component, or false if any component is NaN or Inf.
func maxAbs(v []float64) (float64, bool) {
	m := 0.0
	for _, x := range v {
		if !isFinite(x) {
			return 0, false
		}
		if ax := math.Abs(x); ax > m {
			m = ax
		}
	}
	return m, true
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
