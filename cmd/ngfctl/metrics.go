package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/joshuapare/ngfkit/metrics"
)

func init() {
	rootCmd.AddCommand(newMetricsCmd())
}

func newMetricsCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "metrics <store>",
		Short: "Serve store statistics for Prometheus",
		Long: `The metrics command keeps a store open and serves its allocator and scope
statistics on /metrics until interrupted.

Example:
  ngfctl metrics foods.ngf --listen :9464`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetrics(contextOrBackground(cmd.Context()), args, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9464", "Address to serve /metrics on")
	return cmd
}

func runMetrics(ctx context.Context, args []string, listen string) error {
	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(s, "ngf"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	printInfo("Serving metrics for %s on %s\n", args[0], listen)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
