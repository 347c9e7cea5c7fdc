package main

import (
	"github.com/spf13/cobra"

	"facescan/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the facescan daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log records")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Log only to the run log file")
	return cmd
}
