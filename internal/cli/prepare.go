package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"quoterag/config"
	"quoterag/internal/adapter/corpus"
	"quoterag/internal/adapter/fs"
	"quoterag/internal/adapter/store"
	"quoterag/internal/port"
	"quoterag/internal/usecase"
)

var (
	prepareRebuild  bool
	prepareNoHeader bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare [corpus-dir]",
	Short: "Embed the quote corpus into the store",
	Long: `Read the CSV quote files under the corpus directory, embed every quote
and write the vector store that search and serve load.

Each CSV row is id,quote. Quotes that cannot be embedded are skipped and
reported. A store built with a different embedding model is only replaced
with --rebuild.

Examples:
  quotes prepare             # Corpus under the current directory
  quotes prepare ./data --rebuild`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)
	prepareCmd.Flags().BoolVar(&prepareRebuild, "rebuild", false, "replace a store built with another embedding model")
	prepareCmd.Flags().BoolVar(&prepareNoHeader, "no-header", false, "CSV files have no header row")
}

func runPrepare(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	storePath := cfg.StorePath(GetRootDir())
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	sink, finish, err := openSink(cfg, storePath)
	if err != nil {
		return err
	}
	defer finish()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	preparer := usecase.NewPreparer(
		fs.NewWalker(cfg.Corpus.Includes, cfg.Corpus.Excludes),
		corpus.NewCSVReader(!prepareNoHeader),
		embedder,
		sink,
		cfg.Embedding.BatchSize,
		cfg.Corpus.Concurrency,
		logger,
		nil,
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Preparing %s with %s/%s...\n", path, cfg.Embedding.Provider, cfg.Embedding.Model)

	result, err := preparer.Prepare(cmd.Context(), path, usecase.PrepareOptions{
		Rebuild:  prepareRebuild,
		Progress: newProgress(),
	})
	if err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}

	if bs, ok := sink.(*store.BoltStore); ok {
		if err := bs.Migrate(cfg); err != nil {
			return fmt.Errorf("failed to update schema info: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nPrepare complete:\n")
	fmt.Fprintf(out, "  Files read:     %d\n", result.Files)
	fmt.Fprintf(out, "  Quotes found:   %d\n", result.Quotes)
	fmt.Fprintf(out, "  Quotes stored:  %d\n", result.Embedded)
	fmt.Fprintf(out, "  Duration:       %s\n", formatDuration(result.Duration))

	if len(result.Failures) > 0 {
		fmt.Fprintf(out, "\nSkipped:\n")
		for _, f := range result.Failures {
			switch {
			case f.ID == "":
				fmt.Fprintf(out, "  - %s: %s\n", f.Source, f.Reason)
			case f.Source == "":
				fmt.Fprintf(out, "  - quote #%s: %s\n", f.ID, f.Reason)
			default:
				fmt.Fprintf(out, "  - quote #%s (%s): %s\n", f.ID, f.Source, f.Reason)
			}
		}
	}

	fmt.Fprintf(out, "\nStore written to: %s\n", storePath)
	return nil
}

// openSink opens the configured store for writing. For bolt, the schema and
// recorded embedding setup are checked first.
func openSink(cfg *config.Config, storePath string) (port.CorpusSink, func(), error) {
	if cfg.Store.Format != "bolt" {
		return store.NewJSONFile(storePath), func() {}, nil
	}

	st, err := store.NewBoltStore(storePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	closeFn := func() { st.Close() }

	migration, err := st.CheckMigration(cfg)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to check migration: %w", err)
	}
	switch {
	case migration.NeedsRebuild && !prepareRebuild:
		closeFn()
		return nil, nil, fmt.Errorf("store rebuild required: %s (rerun with --rebuild)", migration.Reason)
	case migration.NeedsRebuild:
		logger.Sugar().Infof("rebuilding store: %s", migration.Reason)
		if err := st.Clear(); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to clear store: %w", err)
		}
	case migration.NeedsMigration:
		logger.Sugar().Infof("running schema migration: %s", migration.Reason)
		if err := st.Migrate(cfg); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return st, closeFn, nil
}

func newProgress() func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		_ = bar.Set(done)

		if done > 0 {
			rate := float64(done) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
