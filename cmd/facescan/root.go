package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag string
	var configFlag string

	ctx := newCommandContext(&socketFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "facescan",
		Short:         "Face scan daemon and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the daemon requests socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newDaemonCommand(ctx))
	for _, cmd := range newScanCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newWaitCommand(ctx))
	rootCmd.AddCommand(newLedgerCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
