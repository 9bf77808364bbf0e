// Package cli wires the inkwell commands: inspect examines document
// files, serve runs the page-search service the editor queries, and
// demo opens a small terminal editor on the engine.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/inkwell/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Structured text editing engine and tools",
	Long: `Inkwell is a headless structured text editor: a keyed node tree
behind a priority command bus, with coalescing undo and trigger-driven
reference autocomplete.

The CLI bundles the tools around the engine. inspect examines and
normalizes document files, serve runs the page-search service the
editor queries for reference completion, and demo opens a terminal
editor wired to both.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.inkwell/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// loadConfig reads the settings file named by --config, or the
// default path, and applies the --log-level override.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Diag.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

