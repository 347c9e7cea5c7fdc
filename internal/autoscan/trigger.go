package autoscan

import (
	"context"
	"time"

	"facescan/internal/ipc"
)

const triggerTimeout = 2 * time.Second

// Trigger requests a scan for the given reason.
type Trigger func(ctx context.Context, reason string) error

// RequestScanAll returns a Trigger that sends SCAN_ALL to the requests
// endpoint at path.
func RequestScanAll(path string) Trigger {
	return func(ctx context.Context, _ string) error {
		sendCtx, cancel := context.WithTimeout(ctx, triggerTimeout)
		defer cancel()
		return ipc.Send(sendCtx, path, ipc.NewMessage(ipc.KindScanAll, 0, ""))
	}
}
