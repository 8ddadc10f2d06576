// Package main provides the cvredact command line tool for redacting French résumés.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "cvredact",
	Short:         "Redact personal information from French résumés",
	Long:          "cvredact masks names, contact details, addresses, dates and identifiers in French résumés, one document at a time or whole datasets in batch.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds a logger that writes to stderr,
// keeping stdout free for redacted output.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	loggerConfig := logger.Config{Level: level, Format: cfg.Logging.Format}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{Enabled: true, Path: cfg.Logging.File.Path}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
