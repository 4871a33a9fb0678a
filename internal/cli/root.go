// Package cli is the offline priceuq command line. It drives the same
// services as the API against a local directory instead of Postgres,
// ClickHouse and MinIO.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/logger"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	workDir string
	verbose bool

	cfg *config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "priceuq",
	Short: "Sale-price models with decomposed uncertainty",
	Long: `priceuq trains dual-head sale-price regressors on CSV data and reports
aleatoric and epistemic uncertainty in dollars.

Commands:
  train          - Fit a model and score its validation split
  predict        - Score a CSV batch with a fitted run
  explain        - Attribute mean, epistemic or aleatoric output to features
  report         - Publish a run's report under the dated export prefix
  runs           - List local runs
  neighborhoods  - Parse a neighborhood mapping document
  token          - Issue an operator token for the API

Example:
  priceuq train --data homes.csv --target SalePrice --price
  priceuq predict 6f1c... --data listings.csv
  priceuq explain 6f1c... --data listings.csv --kind epistemic_std`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", "./priceuq-data", "Directory holding runs and artifacts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(neighborhoodsCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the CLI. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	level := c.Log.Level
	if verbose {
		level = "debug"
	}
	// Logs go to stderr so command output can be piped.
	l, err := logger.Init(logger.Config{
		Level:  level,
		Format: "console",
		Output: zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())),
	})
	if err != nil {
		return err
	}
	cfg, log = c, l
	return nil
}

// writeJSON prints v indented to w, or to the file at path when set
func writeJSON(w io.Writer, path string, v any) error {
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
