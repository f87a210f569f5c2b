package cli

import (
	"github.com/spf13/cobra"

	"sprout-pricing/internal/app"
)

var (
	exportCrop      string
	exportCounty    string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a price history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Crop:      exportCrop,
			County:    exportCounty,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCrop, "crop", "", "Crop name (exact match)")
	exportCmd.Flags().StringVar(&exportCounty, "county", "", "County (defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	_ = exportCmd.MarkFlagRequired("crop")
}
