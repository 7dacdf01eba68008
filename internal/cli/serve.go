package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quoterag/internal/domain"
	"quoterag/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Start the HTTP JSON API. The store is loaded once at startup; send
SIGHUP or POST /api/v1/admin/reload to pick up a freshly prepared store.

Endpoints:
  POST /api/v1/search        {"topic": "...", "include_narrative": true, "top_k": 3}
  GET  /api/v1/status
  POST /api/v1/admin/reload
  GET  /healthz, /readyz, /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := buildEngine(ctx, cfg, GetRootDir(), reg)
	if err != nil {
		return err
	}
	if !engine.IsReady() {
		logger.Warn("serving without a ready store; searches fail until it is prepared and reloaded",
			zap.String("reason", engine.Info().Reason))
	}

	go reloadOnHangup(ctx, engine.Reload)

	return server.New(cfg.Server, engine, reg, logger).Run(ctx)
}

func reloadOnHangup(ctx context.Context, reload func(context.Context) (domain.StoreInfo, error)) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := reload(ctx); err != nil {
				logger.Warn("reload on SIGHUP failed", zap.Error(err))
			}
		}
	}
}
