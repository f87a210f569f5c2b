package cli

import (
	"github.com/spf13/cobra"

	"sprout-pricing/internal/app"
)

var (
	seedDays   int
	seedCounty string
	seedCrops  []string
	seedValue  uint64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Backfill synthetic daily price history for local use",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Seed(cmd.Context(), app.SeedOptions{
			Days:   seedDays,
			County: seedCounty,
			Crops:  seedCrops,
			Seed:   seedValue,
		})
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedDays, "days", app.DefaultSeedDays, "Days of history ending today")
	seedCmd.Flags().StringVar(&seedCounty, "county", "", "County (defaults to config)")
	seedCmd.Flags().StringSliceVar(&seedCrops, "crops", nil, "Crops to seed (defaults to config)")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 0, "Random seed; 0 picks one")
}
