package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/estately/priceuq/internal/domain"
)

var neighborhoodsCmd = &cobra.Command{
	Use:   "neighborhoods FILE",
	Short: "Parse a neighborhood mapping document",
	Long: `Parse a {"mappings": [...]} document, optionally wrapped in a code
fence, and print the resolved sub-region and affluence per neighborhood.
Pass the same file to train, predict and explain with --neighborhoods.`,
	Args: cobra.ExactArgs(1),
	RunE: runNeighborhoods,
}

func runNeighborhoods(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	profiles, err := domain.ParseNeighborhoodMappings(string(raw))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NEIGHBORHOOD\tSUB-REGION\tAFFLUENCE")
	for _, name := range names {
		p := profiles[name]
		fmt.Fprintf(tw, "%s\t%s\t%d\n", name, p.SubRegion, p.Affluence)
	}
	fmt.Fprintf(tw, "\nencoded as: %s\n", strings.Join(domain.NeighborhoodFeatureNames(), ", "))
	return tw.Flush()
}
