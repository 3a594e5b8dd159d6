// Package cmd implements the CLI commands for voxpipe.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/observability"
	"github.com/voxpipe/voxpipe/internal/version"
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitConfigInvalid      = 2
	ExitStoreUnavailable   = 3
	ExitFatalInconsistency = 4
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "voxpipe",
	Short:   "Resumable media processing pipeline for oral history recordings",
	Version: version.Short(),
	Long: `voxpipe transcribes oral history recordings, translates the transcripts
into English, German, and Hebrew, and scores each translation against
configurable quality thresholds.

Every stage records its progress durably, so a stopped or crashed daemon
resumes exactly where it left off. Finished stages produce transcript,
translation, and subtitle artifacts under the configured output root.`,
	SilenceUsage: true,
}

// Execute runs the root command and maps errors to process exit codes.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return ExitOK
}

func init() {
	// These flags are NOT bound to viper. They are checked with Changed()
	// and only then override config/env values, preserving the priority
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/voxpipe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig loads and validates configuration, applying explicit CLI flag
// overrides. An invalid configuration maps to exit code 2.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return nil, &ExitError{Code: ExitConfigInvalid, Err: err}
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		cfg.Logging.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	return cfg, nil
}

// setupLogging builds the redacting logger and installs it as the slog
// default. Logs go to stderr so command output stays clean on stdout.
func setupLogging(cfg *config.Config) *slog.Logger {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
	return logger
}
