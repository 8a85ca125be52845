// Package main is the entrypoint of the engagement service.
//
// engagementd owns the authoritative engagement state of every student:
// it accepts daily check-ins and focus violations, runs them through the
// engagement state machine, escalates to the mentor chat and pushes the
// new status to connected clients.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alem-hub/engagement-hub/config"
	"github.com/alem-hub/engagement-hub/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engagementd",
	Short: "Student engagement state machine and escalation service",
	Long: `engagementd tracks each student's engagement state (normal,
needs_intervention, remedial), alerts the mentor when a student falls
behind or breaks focus, and pushes status changes to the focus client.

Configuration comes from environment variables, optionally layered over a
YAML file given with --config or CONFIG_FILE.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg), nil
}

// setupLogger configures structured logging: JSON in production, text
// otherwise.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	return logger.Setup(logger.Options{
		Output: os.Stdout,
		Level:  level,
		Format: logger.ParseFormat(cfg.Observability.LogFormat, cfg.IsProduction()),
		Attrs:  []any{"app", cfg.App.Name, "version", cfg.App.Version},
	})
}
