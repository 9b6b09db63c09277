// Package cmd provides the vitrine command-line surface.
//
// Commands:
//   - serve: HTTP server with the embedded studio UI (also the root default)
//   - generate / image: one-shot generation to a file
//   - creations: history listing, export, and import
//   - mcp: Model Context Protocol server on stdio
//   - version: build information
//
// All long-running commands shut down gracefully on SIGINT/SIGTERM via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "vitrine",
	Short: "Turn prompts, images, and documents into interactive HTML artifacts",
	Long: `Vitrine is a self-hosted studio that turns a text prompt, an image, a
document, or a web page into an AI-generated interactive HTML artifact,
rendered live in an embedded browser UI.

Running vitrine without a subcommand starts the studio server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute is the entry point for the vitrine CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates the configuration, builds the logger it
// describes, and installs it as the process default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.NewWithWriter(os.Stderr, log.Config{
		Level: log.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.Format == "json",
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}
