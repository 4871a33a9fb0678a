package cli

import (
	"github.com/spf13/cobra"

	"github.com/estately/priceuq/internal/domain"
)

// frameFlags are the CSV options shared by every command reading data
type frameFlags struct {
	data               string
	target             string
	logTarget          bool
	drop               []string
	neighborhoods      string
	neighborhoodColumn string
}

func (f *frameFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data, "data", "", "CSV file with a header row")
	cmd.Flags().StringVar(&f.target, "target", "sale_price", "Sale price column")
	cmd.Flags().BoolVar(&f.logTarget, "log-target", false, "Target column already holds log prices")
	cmd.Flags().StringSliceVar(&f.drop, "drop", nil, "Columns to ignore")
	cmd.Flags().StringVar(&f.neighborhoods, "neighborhoods", "", "Neighborhood mapping document to encode with")
	cmd.Flags().StringVar(&f.neighborhoodColumn, "neighborhood-column", "", "Column holding neighborhood names")
	_ = cmd.MarkFlagRequired("data")
}

func (f *frameFlags) load(requireTarget bool, priceScale float64) (domain.FrameData, error) {
	profiles, err := loadNeighborhoods(f.neighborhoods)
	if err != nil {
		return domain.FrameData{}, err
	}
	return loadFrameCSV(f.data, csvOptions{
		Target:             f.target,
		RequireTarget:      requireTarget,
		Price:              !f.logTarget,
		PriceScale:         priceScale,
		Drop:               f.drop,
		NeighborhoodColumn: f.neighborhoodColumn,
		Neighborhoods:      profiles,
	})
}
