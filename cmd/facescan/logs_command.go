package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"facescan/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lines < 0 {
				return fmt.Errorf("lines must be non-negative, got %d", lines)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.CurrentLogPath()
			out := cmd.OutOrStdout()

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 && offset == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log at %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines until interrupted")
	return cmd
}
