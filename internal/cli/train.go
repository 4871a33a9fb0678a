package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
)

var (
	trainFrame      frameFlags
	trainName       string
	trainOutput     string
	trainEpochs     int
	trainPatience   int
	trainRate       float64
	trainDropout    float64
	trainSeed       uint64
	trainHidden     []int
	trainPriceScale float64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a model and score its validation split",
	Long: `Train a dual-head regressor on a CSV of features and sale prices.

The run, its snapshot and the validation uncertainty report are written
under --dir and the completed run is printed as JSON.

Examples:
  priceuq train --data homes.csv --target sale_price
  priceuq train --data homes.csv --neighborhoods mappings.json --neighborhood-column neighborhood
  priceuq train --data homes.csv --epochs 100 --hidden 128,64 --seed 7`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainFrame.register(trainCmd)
	trainCmd.Flags().StringVar(&trainName, "name", "", "Run name (defaults to the CSV file name)")
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "", "Write the run JSON to a file")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "Maximum epochs")
	trainCmd.Flags().IntVar(&trainPatience, "patience", 0, "Early stopping patience")
	trainCmd.Flags().Float64Var(&trainRate, "learning-rate", 0, "Adam learning rate")
	trainCmd.Flags().Float64Var(&trainDropout, "dropout", 0, "Dropout rate")
	trainCmd.Flags().Uint64Var(&trainSeed, "seed", 0, "Random seed")
	trainCmd.Flags().IntSliceVar(&trainHidden, "hidden", nil, "Hidden layer widths")
	trainCmd.Flags().Float64Var(&trainPriceScale, "price-scale", 0, "Dollars per price unit")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(workDir)
	if err != nil {
		return err
	}

	overrides := trainOverrides(cmd)
	scale := cfg.Uncertainty.PriceScale
	if overrides.PriceScale != nil {
		scale = *overrides.PriceScale
	}
	data, err := trainFrame.load(true, scale)
	if err != nil {
		return err
	}

	name := trainName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(trainFrame.data), filepath.Ext(trainFrame.data))
	}

	run, err := ws.training.CreateRun(ctx, &domain.CreateRunInput{
		Name:    name,
		Dataset: data,
		Options: overrides,
	})
	if err != nil {
		return err
	}
	log.Info("training", zap.String("run_id", run.ID.String()), zap.Int("rows", len(data.Rows)))

	for _, id := range ws.queue.training {
		if err := ws.training.ExecuteRun(ctx, id); err != nil {
			return err
		}
	}

	run, err = ws.training.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), trainOutput, run)
}

// trainOverrides collects only the flags set on the command line
func trainOverrides(cmd *cobra.Command) *domain.RunOverrides {
	o := &domain.RunOverrides{}
	flags := cmd.Flags()
	if flags.Changed("epochs") {
		o.MaxEpochs = &trainEpochs
	}
	if flags.Changed("patience") {
		o.EarlyStoppingPatience = &trainPatience
	}
	if flags.Changed("learning-rate") {
		o.LearningRate = &trainRate
	}
	if flags.Changed("dropout") {
		o.DropoutRate = &trainDropout
	}
	if flags.Changed("seed") {
		o.RandomSeed = &trainSeed
	}
	if flags.Changed("hidden") {
		o.HiddenLayers = trainHidden
	}
	if flags.Changed("price-scale") {
		o.PriceScale = &trainPriceScale
	}
	return o
}
