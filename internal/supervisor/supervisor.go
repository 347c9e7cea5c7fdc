package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"facescan/internal/logging"
)

// RunFunc is the worker body. It must call ready once its inbound listener
// is attached and return when ctx ends or the worker quits.
type RunFunc func(ctx context.Context, ready func() error) error

// Supervisor starts and tracks the single worker goroutine.
type Supervisor struct {
	run     RunFunc
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	cancel  context.CancelFunc
	err     error
}

// New returns a supervisor that will run fn with the given handoff timeout.
func New(fn RunFunc, timeout time.Duration, logger *slog.Logger) *Supervisor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Supervisor{
		run:     fn,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "supervisor"),
	}
}

// Ensure starts the worker on first use and blocks on its readiness post.
// Once a worker has been started, Ensure never starts another: it returns nil
// while the worker is alive and ErrHandoffFailed after it has exited.
func (s *Supervisor) Ensure(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
			return fmt.Errorf("%w: worker already terminated", ErrHandoffFailed)
		default:
			return nil
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rv := NewRendezvous()
	done := make(chan struct{})
	s.started = true
	s.done = done
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Debug("starting scan worker", logging.Duration("handoff_timeout", s.timeout))
	go func() {
		defer close(done)
		defer cancel()
		err := s.run(runCtx, rv.Post)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("scan worker exited with error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "worker_exit_error"),
			)
			return
		}
		s.logger.Debug("scan worker exited")
	}()

	if err := rv.wait(ctx, s.timeout, done); err != nil {
		cancel()
		return err
	}
	s.logger.Info("scan worker ready")
	return nil
}

// Running reports whether a worker was started and has not yet exited.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done is closed when the worker goroutine returns. Before any worker has been
// started it returns an already closed channel.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Err returns the worker's exit error once Done is closed.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop cancels the worker's context without waiting for it to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
