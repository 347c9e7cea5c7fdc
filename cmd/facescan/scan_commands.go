package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facescan/internal/config"
	"facescan/internal/ipc"
)

const requestTimeout = 10 * time.Second

type scanFlags struct {
	wait    bool
	timeout time.Duration
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.wait, "wait", "w", false, "Wait for the completion notice")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Minute, "Maximum time to wait with --wait")
}

func newScanCommands(ctx *commandContext) []*cobra.Command {
	var single scanFlags
	scanCmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan one catalog item by path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveMediaPath(args[0])
			if err != nil {
				return err
			}
			return runScan(cmd, ctx, ipc.KindScanSingle, path, single)
		},
	}
	single.register(scanCmd)

	var all scanFlags
	scanAllCmd := &cobra.Command{
		Use:   "scan-all",
		Short: "Scan every catalog item not yet scanned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, ctx, ipc.KindScanAll, "", all)
		},
	}
	all.register(scanAllCmd)

	cancelCmd := &cobra.Command{
		Use:   "cancel [path]",
		Short: "Cancel pending items for a path, or the whole running scan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if err := sendCommand(cmd.Context(), ctx, ipc.KindCancelAll, ""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Requested cancellation of the running scan")
				return nil
			}
			path, err := resolveMediaPath(args[0])
			if err != nil {
				return err
			}
			if err := sendCommand(cmd.Context(), ctx, ipc.KindCancel, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requested cancellation of %s\n", path)
			return nil
		},
	}

	killCmd := &cobra.Command{
		Use:   "kill",
		Short: "Stop the daemon once the scan worker is idle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sendCommand(cmd.Context(), ctx, ipc.KindKillService, ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Requested daemon shutdown")
			return nil
		},
	}

	return []*cobra.Command{scanCmd, scanAllCmd, cancelCmd, killCmd}
}

func runScan(cmd *cobra.Command, ctx *commandContext, kind ipc.Kind, payload string, flags scanFlags) error {
	requests, err := ctx.requestsPath()
	if err != nil {
		return err
	}

	var waiter *noticeWaiter
	if flags.wait {
		notify, err := ctx.notifyPath()
		if err != nil {
			return err
		}
		waiter, err = listenNotices(cmd.Context(), notify)
		if err != nil {
			return err
		}
		defer waiter.Close()
	}

	reqCtx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	reply, err := ipc.Request(reqCtx, requests, ipc.NewMessage(kind, uint32(os.Getuid()), payload))
	if err != nil {
		return wrapDialError(err, requests)
	}
	if payload != "" && len(reply.Payload) == 0 {
		return errors.New("daemon rejected the scan request; check the daemon log")
	}

	out := cmd.OutOrStdout()
	if kind == ipc.KindScanSingle {
		fmt.Fprintf(out, "Scan requested for %s\n", payload)
	} else {
		fmt.Fprintln(out, "Scan of all unscanned items requested")
	}
	if waiter == nil {
		return nil
	}

	notice, err := waiter.Await(cmd.Context(), flags.timeout, func(m ipc.Message) bool {
		return m.Kind == ipc.KindServiceCompleted && m.PayloadString() == payload
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s received\n", notice.Kind)
	return nil
}

func sendCommand(parent context.Context, ctx *commandContext, kind ipc.Kind, payload string) error {
	requests, err := ctx.requestsPath()
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()
	if err := ipc.Send(sendCtx, requests, ipc.NewMessage(kind, uint32(os.Getuid()), payload)); err != nil {
		return wrapDialError(err, requests)
	}
	return nil
}

func resolveMediaPath(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("path is required")
	}
	expanded, err := config.ExpandPath(arg)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", arg, err)
	}
	if len(abs) >= ipc.MaxPayload {
		return "", fmt.Errorf("path %q exceeds %d bytes", abs, ipc.MaxPayload-1)
	}
	return abs, nil
}
