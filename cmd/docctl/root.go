package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/al3dwii/agenticBE/internal/config"
	"github.com/al3dwii/agenticBE/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "docctl",
	Short:         "Operate the document conversion backend from the command line.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
}

// loadConfig reads the service configuration. docctl never issues tokens, so
// a missing JWT_SECRET is filled with a placeholder.
func loadConfig() (config.Config, error) {
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "docctl")
	}
	return config.Load()
}

func cliLogger(cfg config.Config) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return logger.New(cfg.Env)
}
