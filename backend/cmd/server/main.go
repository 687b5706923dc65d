package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/pairlink/backend/internal/config"
	"github.com/BioHazard786/pairlink/backend/internal/server"
	"github.com/BioHazard786/pairlink/backend/internal/signaling"
	"github.com/BioHazard786/pairlink/internal/logging"
	"github.com/BioHazard786/pairlink/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		addr       string
		metrics    bool
	)

	cmd := &cobra.Command{
		Use:     "server",
		Short:   "Room-scoped WebRTC signaling relay",
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.Options{File: configFile, Addr: addr}
			if cmd.Flags().Changed("metrics") {
				opts.Metrics = &metrics
			}
			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}

			log := logging.Init(logging.ParseLevel(cfg.LogLevel, slog.LevelInfo))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default "+config.DefaultAddr+")")
	cmd.Flags().BoolVar(&metrics, "metrics", config.DefaultMetrics, "serve Prometheus metrics on /metrics")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	opts := []signaling.Option{signaling.WithLogger(log)}

	var reg *prometheus.Registry
	if cfg.MetricsEnabled() {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, signaling.WithPrometheus(reg))
	}

	hub := signaling.NewHub(opts...)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewMux(hub, reg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting signaling server", "addr", cfg.Addr, "metrics", cfg.MetricsEnabled(), "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
