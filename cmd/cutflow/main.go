// Command cutflow evaluates records against a hierarchical cut tree, books
// histograms and cutflows, and persists and cross-validates event-key logs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// #region flags
var (
	verbose bool
	output  string

	logger *zap.Logger
)

// #endregion flags

// #region root
var rootCmd = &cobra.Command{
	Use:   "cutflow",
	Short: "Hierarchical cut-tree evaluation with systematic variations",
	Long: `cutflow evaluates newline-delimited JSON records against the cut tree
described by an analysis YAML file. Each record is evaluated under the nominal
context and every systematic; histograms bound to cuts are filled, linear
cutflows are booked, and the run:lumi:evt keys of passing records can be
stored in SQLite for later comparison between runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&output, "format", envOr("CUTFLOW_FORMAT", "ascii"), "table format: ascii or markdown")
	rootCmd.AddCommand(runCmd, treeCmd, runsCmd, eventsCmd, diffCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// #endregion root

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
