package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"spcguard/internal/config"
	"spcguard/internal/logging"
)

var version = "dev"

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "spcguard",
		Short:         "Statistical process control analytics and alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spcguard:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level from the config")
	rootCmd.AddCommand(serveCmd, analyzeCmd)
}

// loadManager returns a watched manager when a config file is given and a
// static default config otherwise.
func loadManager() (*config.Manager, error) {
	if configPath == "" {
		return config.NewStaticManager(config.DefaultConfig()), nil
	}
	m, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return m, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.NewLogger(level, cfg.LogFormat)
}
