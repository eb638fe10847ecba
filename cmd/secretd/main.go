package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benaskins/secretkit/internal/api"
	"github.com/benaskins/secretkit/internal/backend"
	"github.com/benaskins/secretkit/internal/config"
	"github.com/benaskins/secretkit/internal/logtail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// logTailLines is how many log lines GET /v1/logs can return.
const logTailLines = 500

var configPath string

var rootCmd = &cobra.Command{
	Use:   "secretd",
	Short: "Serve a secret vault over a Unix socket",
	Long: `Serve the configured vault to clients using the remote backend.
Every access is written to the audit log.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	tail := logtail.New(logTailLines)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, tail), &slog.HandlerOptions{Level: level})))

	if cfg.Backend == config.BackendRemote {
		return fmt.Errorf("secretd cannot serve the %q backend", cfg.Backend)
	}

	slog.Info("secretd starting", "backend", cfg.Backend, "socket", cfg.SocketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	b, err := backend.Open(cfg, "daemon")
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", cfg.Backend, err)
	}
	defer b.Close()

	if b.File != nil {
		go func() {
			if err := b.File.Watch(ctx); err != nil {
				slog.Error("vault watcher stopped", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := api.NewServer(b.Store, reg, api.WithLogs(tail))

	// Remove stale socket
	os.Remove(cfg.SocketPath)
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(cfg.SocketPath)
	}()

	slog.Info("secretd ready")

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	os.Remove(cfg.SocketPath)

	slog.Info("secretd stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
