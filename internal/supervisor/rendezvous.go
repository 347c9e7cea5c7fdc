package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrHandoffFailed reports a readiness rendezvous that timed out, was posted
// twice, or was waited on twice.
var ErrHandoffFailed = errors.New("worker handoff failed")

// Rendezvous is a one-shot readiness token. The worker posts once after its
// listener is attached; the supervisor consumes it once.
type Rendezvous struct {
	mu       sync.Mutex
	ch       chan struct{}
	posted   bool
	consumed bool
}

// NewRendezvous returns an unposted rendezvous.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{ch: make(chan struct{}, 1)}
}

// Post delivers the readiness token. Only the first call succeeds.
func (r *Rendezvous) Post() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.posted {
		return fmt.Errorf("%w: readiness already posted", ErrHandoffFailed)
	}
	r.posted = true
	if r.ch != nil {
		r.ch <- struct{}{}
	}
	return nil
}

// Wait blocks until the token is posted, timeout elapses, or ctx ends. The
// channel is released after the first Wait; later calls fail immediately.
func (r *Rendezvous) Wait(ctx context.Context, timeout time.Duration) error {
	return r.wait(ctx, timeout, nil)
}

// wait also returns early when abort closes, which the supervisor uses to
// notice a worker that exited before posting.
func (r *Rendezvous) wait(ctx context.Context, timeout time.Duration, abort <-chan struct{}) error {
	r.mu.Lock()
	if r.consumed {
		r.mu.Unlock()
		return fmt.Errorf("%w: readiness already consumed", ErrHandoffFailed)
	}
	r.consumed = true
	ch := r.ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.ch = nil
		r.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-abort:
		select {
		case <-ch:
			return nil
		default:
		}
		return fmt.Errorf("%w: worker exited before readiness", ErrHandoffFailed)
	case <-timer.C:
		return fmt.Errorf("%w: no readiness within %s", ErrHandoffFailed, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrHandoffFailed, ctx.Err())
	}
}
