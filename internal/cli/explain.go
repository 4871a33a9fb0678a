package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/service"
)

var (
	explainFrame      frameFlags
	explainOutput     string
	explainKind       string
	explainSamples    int
	explainBackground int
	explainSeed       uint64
	explainTable      bool
)

var explainCmd = &cobra.Command{
	Use:   "explain RUN_ID",
	Short: "Attribute a model output to features",
	Long: `Explain one scalar output of the run's model for each CSV row with
sampled Shapley values. --kind picks the output:

  mean           - predicted log price
  epistemic_std  - MC dropout spread of the predicted mean
  aleatoric_std  - predicted noise standard deviation

Background rows are sampled from the run's training data.

Examples:
  priceuq explain 6f1c2b1e-... --data listings.csv --kind mean
  priceuq explain 6f1c2b1e-... --data listings.csv --kind epistemic_std --samples 500 --table`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainFrame.register(explainCmd)
	explainCmd.Flags().StringVarP(&explainOutput, "output", "o", "", "Write the attributions JSON to a file")
	explainCmd.Flags().StringVar(&explainKind, "kind", string(domain.TargetMean), "Output to explain: mean, epistemic_std or aleatoric_std")
	explainCmd.Flags().IntVar(&explainSamples, "samples", 0, "Coalition samples per query")
	explainCmd.Flags().IntVar(&explainBackground, "background", 0, "Background rows")
	explainCmd.Flags().Uint64Var(&explainSeed, "seed", 0, "Sampling seed (defaults to the run seed)")
	explainCmd.Flags().BoolVar(&explainTable, "table", false, "Print the global importance ranking instead of JSON")
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	runID, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	ws, err := openWorkspace(workDir)
	if err != nil {
		return err
	}
	run, err := ws.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	queries, err := explainFrame.load(false, run.Config.PriceScale)
	if err != nil {
		return err
	}
	queries.Targets = nil

	input := &service.ExplainInput{
		RunID:          runID,
		Target:         domain.TargetKind(explainKind),
		Queries:        queries,
		NSamples:       explainSamples,
		BackgroundSize: explainBackground,
	}
	if cmd.Flags().Changed("seed") {
		input.Seed = &explainSeed
	}

	result, err := ws.attribution.Explain(ctx, input)
	if err != nil {
		return err
	}
	if explainTable {
		return writeImportance(cmd.OutOrStdout(), result.Importance)
	}
	return writeJSON(cmd.OutOrStdout(), explainOutput, result)
}

func writeImportance(w io.Writer, importance []domain.FeatureImportance) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tFEATURE\tMEAN |PHI|\tMEAN PHI")
	for _, fi := range importance {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%+.6f\n", fi.Rank, fi.Feature, fi.MeanAbs, fi.MeanSigned)
	}
	return tw.Flush()
}
