package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"quoterag/config"
	"quoterag/internal/adapter/embedding"
	"quoterag/internal/adapter/generation"
	"quoterag/internal/domain"
	"quoterag/internal/usecase"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the embedding and generation providers",
	Long: `Make one embedding call and one short chat call with the configured
providers, then report the embedding dimension and whether each call
succeeded. API keys are only reported as present or missing.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "output as JSON")
}

type providerReport struct {
	usecase.ProviderCheck
	Provider  string `json:"provider"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	KeySet    bool   `json:"key_set"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	embKey := config.APIKey(cfg.Embedding.APIKeyEnv)
	embReport := providerReport{
		Provider:  cfg.Embedding.Provider,
		APIKeyEnv: cfg.Embedding.APIKeyEnv,
		KeySet:    embKey != "",
	}
	if emb, err := embedding.New(cfg.Embedding, embKey, logger); err != nil {
		embReport.ProviderCheck = usecase.ProviderCheck{Op: domain.OpEmbedding, Model: cfg.Embedding.Model, Message: err.Error()}
	} else {
		embReport.ProviderCheck = usecase.CheckEmbedder(ctx, emb)
	}

	genKey := config.APIKey(cfg.Generation.APIKeyEnv)
	genReport := providerReport{
		Provider:  cfg.Generation.Provider,
		APIKeyEnv: cfg.Generation.APIKeyEnv,
		KeySet:    genKey != "",
	}
	if gen, err := generation.New(cfg.Generation, genKey, logger); err != nil {
		genReport.ProviderCheck = usecase.ProviderCheck{Op: domain.OpGeneration, Model: cfg.Generation.Model, Message: err.Error()}
	} else {
		genReport.ProviderCheck = usecase.CheckGenerator(ctx, gen)
	}

	reports := []providerReport{embReport, genReport}
	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printCheck(out, r)
		}
	}

	// Searches still work without generation, so only the embedding call decides.
	if !embReport.OK {
		return errors.New("embedding provider check failed")
	}
	return nil
}

func printCheck(w io.Writer, r providerReport) {
	fmt.Fprintf(w, "%s (%s/%s)\n", r.Op, r.Provider, r.Model)
	if r.APIKeyEnv != "" {
		key := "missing"
		if r.KeySet {
			key = "present"
		}
		fmt.Fprintf(w, "  API key:    %s (%s)\n", key, r.APIKeyEnv)
	}
	switch {
	case r.Skipped:
		fmt.Fprintf(w, "  Result:     skipped, %s\n", r.Message)
	case r.OK:
		fmt.Fprintf(w, "  Result:     ok in %s\n", r.Latency.Round(time.Millisecond))
		if r.Dimension > 0 {
			fmt.Fprintf(w, "  Dimension:  %d\n", r.Dimension)
		}
	default:
		fmt.Fprintf(w, "  Result:     failed: %s\n", r.Message)
		if r.Status != 0 {
			fmt.Fprintf(w, "  Status:     %d\n", r.Status)
		}
		if r.Kind != "" {
			fmt.Fprintf(w, "  Kind:       %s (retryable: %v)\n", r.Kind, r.Retryable)
		}
	}
	fmt.Fprintln(w)
}
