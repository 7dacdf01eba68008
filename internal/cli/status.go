package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quoterag/internal/adapter/store"
	"quoterag/internal/domain"
	"quoterag/internal/port"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the quote store is ready",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

type statusReport struct {
	domain.StoreInfo
	Model   string `json:"model,omitempty"`
	BuiltAt string `json:"built_at,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	snap := store.LoadSnapshot(cmd.Context(), storeSource(cfg, GetRootDir()))
	report := statusReport{StoreInfo: snap.Info()}

	if cfg.Store.Format == "bolt" && snap.IsReady() {
		meta, ok, err := boltMeta(cfg.StorePath(GetRootDir()))
		if err != nil {
			logger.Sugar().Warnf("failed to read store metadata: %v", err)
		} else if ok {
			report.Model = meta.Model
			report.BuiltAt = meta.BuiltAt.Format("2006-01-02 15:04:05 MST")
		}
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Store:      %s\n", report.Source)
		fmt.Fprintf(out, "Ready:      %v\n", report.Ready)
		if report.Ready {
			fmt.Fprintf(out, "Quotes:     %d\n", report.Count)
			fmt.Fprintf(out, "Dimension:  %d\n", report.Dimension)
		} else {
			fmt.Fprintf(out, "Reason:     %s\n", report.Reason)
		}
		if report.Model != "" {
			fmt.Fprintf(out, "Model:      %s (built %s)\n", report.Model, report.BuiltAt)
		}
	}

	if !report.Ready {
		return errors.New("quote store is not ready")
	}
	return nil
}

func boltMeta(path string) (port.StoreMeta, bool, error) {
	if _, err := os.Stat(path); err != nil {
		return port.StoreMeta{}, false, err
	}
	st, err := store.OpenBoltSource(path)
	if err != nil {
		return port.StoreMeta{}, false, err
	}
	defer st.Close()
	return st.Meta()
}
