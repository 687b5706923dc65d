package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/pairlink/cli/internal/config"
	"github.com/BioHazard786/pairlink/cli/internal/signaling"
	"github.com/BioHazard786/pairlink/cli/internal/ui"
)

const ipaddrTimeout = 10 * time.Second

var ipaddrServer string

var ipaddrCmd = &cobra.Command{
	Use:   "ipaddr",
	Short: "Print the signaling server's IPv4 address",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{File: flagConfig, Server: ipaddrServer})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), ipaddrTimeout)
		defer cancel()

		spin := ui.NewConnectionSpinner("Asking " + cfg.Server + "...")
		spin.Start()
		defer spin.Stop()

		client, err := signaling.Dial(ctx, cfg.Server, slog.Default())
		if err != nil {
			return err
		}
		defer client.Close()

		addr, err := client.IPAddr(ctx)
		if err != nil {
			return fmt.Errorf("ipaddr: %w", err)
		}
		spin.Stop()
		fmt.Fprintln(cmd.OutOrStdout(), addr)
		return nil
	},
}

func init() {
	ipaddrCmd.Flags().StringVarP(&ipaddrServer, "server", "s", "", "signaling server WebSocket URL")
	rootCmd.AddCommand(ipaddrCmd)
}
