package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"facescan/internal/ipc"
)

// noticeWaiter listens on the notify endpoint for daemon notices.
type noticeWaiter struct {
	cancel  context.CancelFunc
	inbound chan ipc.Inbound
}

func listenNotices(parent context.Context, path string) (*noticeWaiter, error) {
	ctx, cancel := context.WithCancel(parent)
	listener, err := ipc.Listen(ctx, path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen for notices on %s: %w", path, err)
	}
	w := &noticeWaiter{cancel: cancel, inbound: make(chan ipc.Inbound, 8)}
	go ipc.Serve(ctx, listener, ipc.PortNotify, w.inbound, nil)
	return w, nil
}

// Await returns the first notice accepted by match.
func (w *noticeWaiter) Await(ctx context.Context, timeout time.Duration, match func(ipc.Message) bool) (ipc.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case in := <-w.inbound:
			in.Close()
			if match(in.Msg) {
				return in.Msg, nil
			}
		case <-timer.C:
			return ipc.Message{}, fmt.Errorf("no matching notice within %s", timeout)
		case <-ctx.Done():
			return ipc.Message{}, ctx.Err()
		}
	}
}

func (w *noticeWaiter) Close() {
	w.cancel()
}

func newWaitCommand(ctx *commandContext) *cobra.Command {
	var ready bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for a daemon notice on the notify socket",
		Long:  "Listen on the notify socket and print notices until SERVICE_COMPLETED arrives (or SERVICE_READY with --ready).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.notifyPath()
			if err != nil {
				return err
			}
			waiter, err := listenNotices(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer waiter.Close()

			want := ipc.KindServiceCompleted
			if ready {
				want = ipc.KindServiceReady
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Waiting for %s on %s\n", want, path)
			_, err = waiter.Await(cmd.Context(), timeout, func(m ipc.Message) bool {
				if payload := m.PayloadString(); payload != "" {
					fmt.Fprintf(out, "%s uid=%d %s\n", m.Kind, m.UID, payload)
				} else {
					fmt.Fprintf(out, "%s uid=%d\n", m.Kind, m.UID)
				}
				return m.Kind == want
			})
			return err
		},
	}

	cmd.Flags().BoolVar(&ready, "ready", false, "Return on SERVICE_READY instead of SERVICE_COMPLETED")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait")
	return cmd
}
