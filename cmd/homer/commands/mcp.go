package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/mcp"
	"github.com/homer-mine/homer/pkg/observability"
)

// metricsReadHeaderTimeout bounds slow-header clients on the optional
// Prometheus scrape endpoint.
const metricsReadHeaderTimeout = 10 * time.Second

func newMCPCommand(flags *rootFlags) *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the hypergraph over the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			providers, err := initObservability(flags, observability.ModeMCP)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer func() { _ = providers.Shutdown(context.Background()) }()

			store, err := homergraph.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
			}
			defer func() { _ = store.Close() }()

			redMetrics, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return fmt.Errorf("create RED metrics: %w", err)
			}

			if metricsPort > 0 {
				if serveErr := serveMetrics(metricsPort, providers); serveErr != nil {
					return serveErr
				}
			}

			server := mcp.NewServer(mcp.ServerDeps{
				Store:   store,
				Logger:  providers.Logger,
				Metrics: redMetrics,
				Tracer:  providers.Tracer,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus /metrics on this port (0 disables)")

	return cmd
}

// serveMetrics starts the Prometheus scrape endpoint in the background.
func serveMetrics(port int, providers observability.Providers) error {
	handler, err := observability.PrometheusHandler()
	if err != nil {
		return fmt.Errorf("create prometheus handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           observability.HTTPMiddleware(providers.Tracer, providers.Logger, mux),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() { _ = srv.ListenAndServe() }()

	return nil
}
