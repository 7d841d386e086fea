package main

import (
	"context"
	"net/http"
	"time"

	"github.com/agentuity/querycache/cache"
	"github.com/agentuity/querycache/env"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newGCCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete expired rows from the cache tables until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := env.NewLogger(cmd).WithPrefix("[gc]")
			a, err := newApp(ctx, log)
			if err != nil {
				return err
			}
			defer a.Close()

			once, _ := cmd.Flags().GetBool("once")
			sweeper := cache.NewSweeper(a.builder.Sweepables(),
				cache.WithLogger(log),
				cache.WithMetrics(a.metrics),
				cache.WithSweepInterval(a.cfg.GCInterval),
			)
			if once {
				n, err := sweeper.SweepOnce(ctx)
				log.Info("deleted %d expired rows", n)
				return err
			}

			if addr := env.FlagOrEnv(cmd, "metrics-addr", "METRICS_ADDR", ""); addr != "" {
				srv := &http.Server{
					Addr:              addr,
					Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					log.Info("serving metrics on %s", addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("metrics server failed: %v", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			log.Info("sweeping %d tables every %s", len(a.builder.Sweepables()), sweeper.Interval())
			sweeper.Run(ctx)
			log.Info("stopped")
			return nil
		},
	}
	cmd.Flags().String("metrics-addr", "", "address to serve prometheus metrics on, e.g. :9090")
	cmd.Flags().Bool("once", false, "sweep once and exit")
	return cmd
}
