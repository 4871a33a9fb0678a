package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/service"
)

var (
	predictFrame   frameFlags
	predictOutput  string
	predictSeed    uint64
	predictPersist bool
)

var predictCmd = &cobra.Command{
	Use:   "predict RUN_ID",
	Short: "Score a CSV batch with a fitted run",
	Long: `Score every row of a CSV with the run's model and print the uncertainty
report: predicted price, aleatoric and epistemic dollar standard deviations,
95% interval and outlier flags per row. When the CSV carries the target
column the report includes interval coverage.

Examples:
  priceuq predict 6f1c2b1e-... --data listings.csv
  priceuq predict 6f1c2b1e-... --data holdout.csv --persist -o holdout.json`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	predictFrame.register(predictCmd)
	predictCmd.Flags().StringVarP(&predictOutput, "output", "o", "", "Write the report JSON to a file")
	predictCmd.Flags().Uint64Var(&predictSeed, "seed", 0, "Seed for the dropout passes (defaults to the run seed)")
	predictCmd.Flags().BoolVar(&predictPersist, "persist", false, "Keep the scored records under --dir")
}

func runPredict(cmd *cobra.Command, args []string) error {
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
	batch, err := predictFrame.load(false, run.Config.PriceScale)
	if err != nil {
		return err
	}

	input := &service.PredictInput{RunID: runID, Batch: batch, Persist: predictPersist}
	if cmd.Flags().Changed("seed") {
		input.Seed = &predictSeed
	}
	result, err := ws.prediction.Predict(ctx, input)
	if err != nil {
		return err
	}
	if predictPersist {
		log.Info("records stored", zap.String("path", artifactPath(predictionKey(runID, result.BatchID))))
	}
	return writeJSON(cmd.OutOrStdout(), predictOutput, result)
}

func parseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return id, nil
}

// artifactPath is where key lives under the working directory
func artifactPath(key string) string {
	return filepath.Join(workDir, filepath.FromSlash(key))
}
