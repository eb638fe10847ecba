package main

import (
	"context"
	"fmt"

	"github.com/benaskins/secretkit/vault"
	"github.com/spf13/cobra"
)

var logLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent secretd log lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := vault.NewRemoteStore(cfg.SocketPath)
		defer remote.Close()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		lines, err := remote.Logs(ctx, logLines)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}
