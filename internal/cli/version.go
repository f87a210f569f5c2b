package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sprout-pricing/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), version.Summary(rootCmd.Name()))
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
}
