// Package main is the kiku CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/pkg/utils"
)

var version = "dev"

const defaultConfigName = "config.yaml"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kiku",
	Short: "Retrieval-augmented question answering over your documents",
	Long: `kiku ingests PDF, Word and text documents into a vector collection with
stable chunk ids and answers questions using only the retrieved passages.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config named by --config. Without the flag it uses
// config.yaml in the current directory when it exists, else the environment only.
// Returns the config and the path that was actually loaded ("" for none).
func loadConfig() (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, defaultConfigName)
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w\nRun `kiku init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// setup loads the config and builds the logger every command starts from.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	debug := cfg.Debug || verbose
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", path), zap.String("store", cfg.Store.Type))
	return cfg, logger, nil
}
