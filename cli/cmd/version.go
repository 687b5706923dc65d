package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/pairlink/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pairlink %s (%s/%s, %s)\n",
			version.Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
