package retriever

import "math"

// Retrieval quality measures used by the benchmark tool.

func PrecisionAtK(retrieved, relevant []string) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	return float64(hits(retrieved, relevant)) / float64(len(retrieved))
}

func RecallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	return float64(hits(retrieved, relevant)) / float64(len(relevant))
}

// ReciprocalRank returns 1/rank of the first relevant id, or 0 if none was retrieved.
func ReciprocalRank(retrieved, relevant []string) float64 {
	set := toSet(relevant)
	for i, r := range retrieved {
		if set[r] {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// NDCG normalizes the discounted cumulative gain of scores against the ideal ordering.
func NDCG(scores, ideal []float64) float64 {
	idcg := dcg(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg(scores) / idcg
}

func dcg(scores []float64) float64 {
	total := 0.0
	for i, score := range scores {
		total += score / math.Log2(float64(i+2))
	}
	return total
}

func hits(retrieved, relevant []string) int {
	set := toSet(relevant)
	n := 0
	for _, r := range retrieved {
		if set[r] {
			n++
		}
	}
	return n
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
