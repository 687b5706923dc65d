package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/pairlink/cli/internal/ui"
	"github.com/BioHazard786/pairlink/internal/logging"
	"github.com/BioHazard786/pairlink/internal/version"
)

var flagConfig string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pairlink",
	Short: "Pair two peers in a named room and connect them over WebRTC",
	Long: `pairlink joins a room on a signaling server, negotiates a WebRTC connection
with the other member of the room and exchanges images over a data channel.
The first peer in a room makes the offer, the second answers.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(slog.LevelError)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
