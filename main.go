package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olehluchkiv/classweave/internal/logging"
)

var (
	logFile  string
	logLevel string

	// logger is set by the root command before any subcommand runs.
	logger      *slog.Logger
	logCleanup  = func() {}
	defaultLogs = "logs/classweave.log"
)

var rootCmd = &cobra.Command{
	Use:   "classweave",
	Short: "Pre-match JVM classes against instrumentation rules",
	Long: `classweave scans compiled JVM classes in a single pass and decides, from a
structural summary alone, which pointcut advice and mixins would apply to
each class at load time.

Examples:
  classweave scan build/classes --rules plugin.yaml
  classweave scan app.jar --rules servlet.yaml --rules jdbc.yaml --workers 8
  classweave rules plugin.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		l, cleanup, err := logging.Setup(logFile, level)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		logger, logCleanup = l, cleanup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logCleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogs, "log file path (empty for stderr only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("command failed", "error", err)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s (valid: debug, info, warn, error)", s)
	}
}
