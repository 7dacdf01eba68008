package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"quoterag/config"
	"quoterag/internal/adapter/embedding"
	"quoterag/internal/adapter/retriever"
	"quoterag/internal/adapter/store"
)

func main() {
	dir := flag.String("dir", ".", "Project directory holding quotes.yaml and the store")
	query := flag.String("q", "", "Topic to test")
	topK := flag.Int("k", 10, "Number of results")
	relevant := flag.String("relevant", "", "Comma-separated quote ids expected for the topic")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"topic\" [-relevant 12,40,7]")
		fmt.Println("\nReports:")
		fmt.Println("  1. Store and embedding model in use")
		fmt.Println("  2. Similarity of the top matches")
		fmt.Println("  3. Precision, recall, MRR and nDCG when -relevant is given")
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	snap := store.LoadSnapshot(ctx, store.NewSource(cfg.Store.Format, cfg.StorePath(*dir)))
	if !snap.IsReady() {
		fmt.Fprintf(os.Stderr, "Store not ready: %s\n", snap.Info().Reason)
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding, config.APIKey(cfg.Embedding.APIKeyEnv), zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("QUOTE SIMILARITY BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Quotes stored: %d\n", snap.Count())
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", snap.Dimension())
	fmt.Println()

	fmt.Printf("Topic: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	vecs, err := embedder.Embed(ctx, []string{*query})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		fmt.Fprintln(os.Stderr, "Embedding error: provider returned no vector")
		os.Exit(1)
	}
	fmt.Printf("Topic embedded: %d dimensions\n\n", len(vecs[0]))

	results, err := retriever.NewExactRanker().Rank(vecs[0], snap.Records(), *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ranking error: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}

	fmt.Printf("Top %d matches:\n\n", len(results))

	totalScore := 0.0
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
		totalScore += r.Similarity

		rating := "LOW"
		if r.Similarity > 0.7 {
			rating = "HIGH"
		} else if r.Similarity > 0.5 {
			rating = "GOOD"
		} else if r.Similarity > 0.3 {
			rating = "OK"
		}

		preview := r.Text
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		fmt.Printf("%d. [%s %.3f] #%s\n", i+1, rating, r.Similarity, r.ID)
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Similarity)

	if *relevant != "" {
		expected := splitIDs(*relevant)
		gains := make([]float64, len(ids))
		for i, id := range ids {
			for _, want := range expected {
				if id == want {
					gains[i] = 1
				}
			}
		}
		ideal := make([]float64, min(len(expected), len(ids)))
		for i := range ideal {
			ideal[i] = 1
		}
		fmt.Printf("  Precision@%d:       %.3f\n", len(ids), retriever.PrecisionAtK(ids, expected))
		fmt.Printf("  Recall@%d:          %.3f\n", len(ids), retriever.RecallAtK(ids, expected))
		fmt.Printf("  MRR:                %.3f\n", retriever.ReciprocalRank(ids, expected))
		fmt.Printf("  nDCG:               %.3f\n", retriever.NDCG(gains, ideal))
	}

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - matches are closely related")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - matches are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need a better embedding model or a re-prepare")
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
