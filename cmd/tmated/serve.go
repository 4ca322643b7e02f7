package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ormanaq/tmate/internal/config"
	"github.com/ormanaq/tmate/internal/controller"
	"github.com/ormanaq/tmate/internal/history/factory"
	ilogger "github.com/ormanaq/tmate/internal/logger"
	"github.com/ormanaq/tmate/internal/metrics"
	"github.com/ormanaq/tmate/internal/server"
)

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the tmated daemon",
		Long: `Start the tmated daemon: the HTTP API, the session supervisor and the
log broadcast hub.

Examples:
  tmated serve                      # Built-in defaults
  tmated serve tmated.toml          # Start with specific config file
  tmated serve --listen=:9000       # Override listen address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath, serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address override (host:port)")
	return cmd
}

func runServe(configPath string, flags *ServeFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flags.Listen != "" {
		cfg.Listen = flags.Listen
	}

	lg := logger(cfg)
	slog.SetDefault(lg)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		lg.Warn("metrics registration failed", "error", err)
	}

	opts := cfg.ControllerOptions()
	opts.Logger = lg
	if cfg.History.DSN != "" {
		sink, serr := factory.NewSinkFromDSN(cfg.History.DSN)
		if serr != nil {
			return fmt.Errorf("history sink: %w", serr)
		}
		if closer, ok := sink.(interface{ Close() error }); ok {
			defer func() { _ = closer.Close() }()
		}
		opts.History = sink
	}

	ctrl := controller.New(opts)
	srv := server.NewServer(cfg.Listen, cfg.BasePath, ctrl)
	lg.Info("daemon started", "listen", cfg.Listen, "base_path", cfg.BasePath, "region", cfg.Region)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	lg.Info("shutting down", "signal", s.String())

	ctrl.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn("http server shutdown", "error", err)
		_ = srv.Close()
	}
	return nil
}

func logger(cfg config.Config) *slog.Logger {
	return ilogger.NewSlogger(cfg.Slog, os.Stderr)
}
