package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"quoterag/internal/domain"
	"quoterag/internal/usecase"
)

var (
	searchTopK        int
	searchJSON        bool
	searchNoNarrative bool
)

var searchCmd = &cobra.Command{
	Use:   "search [topic]",
	Short: "Find quotes related to a topic",
	Long: `Search the prepared store for the quotes closest to a topic and print
them with a narrative. With no topic, the configured default topic is used.

Examples:
  quotes search leadership
  quotes search "work life balance" -k 5 --json
  quotes search patience --no-narrative`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of quotes (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchNoNarrative, "no-narrative", false, "skip the narrative")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	topic := strings.Join(args, " ")
	if strings.TrimSpace(topic) == "" {
		topic = cfg.Retrieve.DefaultTopic
	}

	engine, err := buildEngine(cmd.Context(), cfg, GetRootDir(), nil)
	if err != nil {
		return err
	}

	result := engine.SearchWithOptions(cmd.Context(), topic, usecase.SearchOptions{
		IncludeNarrative: !searchNoNarrative,
		TopK:             searchTopK,
	})

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(out, result)
	}

	if serr, failed := result.Failed(); failed {
		return errors.New(serr.Message)
	}
	return nil
}

func printResult(w io.Writer, result domain.SearchResult) {
	quotes, narrative, ok := result.Succeeded()
	if !ok {
		return
	}

	if len(quotes) == 0 {
		fmt.Fprintf(w, "No quotes found for: %s\n", result.Topic)
	} else {
		fmt.Fprintf(w, "Top %d quotes for: %s\n\n", len(quotes), result.Topic)
		for i, q := range quotes {
			fmt.Fprintf(w, "%d. [%.3f] #%s %s\n", i+1, q.Similarity, q.ID, q.Text)
		}
	}

	if narrative != nil {
		fmt.Fprintf(w, "\n--- narrative (%s) ---\n%s\n", narrative.Source, narrative.Text)
	}
}
