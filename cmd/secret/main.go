package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/benaskins/secretkit/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	timeout    time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "secret",
	Short:         "Store and retrieve passwords in the secret service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		level, err := loaded.Level()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the service")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
