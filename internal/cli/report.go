package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reportSince time.Duration

var reportCmd = &cobra.Command{
	Use:   "report [RUN_ID]",
	Short: "Publish run reports under the dated export prefix",
	Long: `Copy a completed run's validation report to
<prefix>/YYYY-MM-DD/<run>.json under --dir. Without a run id every run
completed within --since is exported.

Examples:
  priceuq report 6f1c2b1e-...
  priceuq report --since 168h`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "Window of completed runs to export when no run id is given")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(workDir)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		n, err := ws.reports.ExportSince(ctx, reportSince)
		if err != nil {
			return err
		}
		log.Info("reports exported", zap.Int("count", n))
		return nil
	}

	runID, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	result, err := ws.reports.Export(ctx, runID)
	if err != nil {
		return err
	}
	log.Info("report exported", zap.String("path", artifactPath(result.Key)))
	return writeJSON(cmd.OutOrStdout(), "", result)
}
