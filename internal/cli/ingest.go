package cli

import (
	"github.com/spf13/cobra"

	"sprout-pricing/internal/app"
)

var (
	ingestCrops  []string
	ingestCounty string
	ingestZip    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch market prices once, persist them and refresh predictions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context(), app.IngestOptions{
			Crops:   ingestCrops,
			County:  ingestCounty,
			ZipCode: ingestZip,
		})
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestCrops, "crops", nil, "Crops to ingest (defaults to config)")
	ingestCmd.Flags().StringVar(&ingestCounty, "county", "", "County to record prices under (defaults to config)")
	ingestCmd.Flags().StringVar(&ingestZip, "zip", "", "Zip code passed to the market feed (defaults to config)")
}
