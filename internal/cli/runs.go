package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/estately/priceuq/internal/domain"
)

var (
	runsStatus string
	runsLimit  int
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List local runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs with this status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to show")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print JSON")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(workDir)
	if err != nil {
		return err
	}

	filter := &domain.RunFilter{Limit: runsLimit}
	if runsStatus != "" {
		status := domain.RunStatus(runsStatus)
		if !status.IsValid() {
			return fmt.Errorf("unknown status %q", runsStatus)
		}
		filter.Status = &status
	}

	list, err := ws.runs.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if runsJSON {
		return writeJSON(cmd.OutOrStdout(), "", list)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tR2\tCOVERAGE\tCREATED")
	for _, run := range list.Runs {
		r2, coverage := "-", "-"
		if run.Metrics != nil {
			r2 = fmt.Sprintf("%.3f", run.Metrics.RSquared)
			coverage = fmt.Sprintf("%.1f%%", 100*run.Metrics.CoverageObserved)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Name, run.Status, r2, coverage, run.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
