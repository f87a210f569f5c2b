package cli

import (
	"github.com/spf13/cobra"

	"sprout-pricing/internal/app"
)

var (
	analyzeCrop   string
	analyzeCounty string
	analyzeJSON   bool
	analyzeNotify bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Predict the next price for a crop in a county",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), app.AnalyzeOptions{
			Crop:   analyzeCrop,
			County: analyzeCounty,
			JSON:   analyzeJSON,
			Notify: analyzeNotify,
		})
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCrop, "crop", "", "Crop name (exact match)")
	analyzeCmd.Flags().StringVar(&analyzeCounty, "county", "", "County (defaults to config)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the result as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeNotify, "notify", false, "Push the insight through the configured notifier")
	_ = analyzeCmd.MarkFlagRequired("crop")
}
