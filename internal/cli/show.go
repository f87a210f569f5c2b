package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sprout-pricing/internal/app"
)

var (
	showCrop   string
	showCounty string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Crop:   showCrop,
			County: showCounty,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCrop, "crop", "", "Crop name (exact match)")
	showCmd.Flags().StringVar(&showCounty, "county", "", "County (defaults to config)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of observations to display")
	_ = showCmd.MarkFlagRequired("crop")
}
