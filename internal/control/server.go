package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"facescan/internal/config"
	"facescan/internal/ipc"
	"facescan/internal/logging"
	"facescan/internal/services"
)

const sendTimeout = 2 * time.Second

// Supervisor is the worker lifecycle the server drives.
type Supervisor interface {
	Ensure(ctx context.Context) error
	Running() bool
	Done() <-chan struct{}
	Stop()
}

// Server is the control-plane dispatch loop.
type Server struct {
	endpoints ipc.Endpoints
	sup       Supervisor
	interval  time.Duration
	maxWait   time.Duration
	logger    *slog.Logger

	terminating bool
	deadline    time.Time
	quiesce     *time.Ticker
}

// New builds a server for cfg's endpoints.
func New(cfg *config.Config, sup Supervisor, logger *slog.Logger) *Server {
	interval := cfg.QuiescenceInterval()
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		endpoints: cfg.Endpoints(),
		sup:       sup,
		interval:  interval,
		maxWait:   cfg.QuiescenceMaxWait(),
		logger:    logging.NewComponentLogger(logger, "server"),
	}
}

// Run listens on the server and requests endpoints, announces SERVICE_READY,
// and dispatches frames until the worker quiesces after a kill or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.endpoints.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "server", "endpoints", "invalid socket layout", err)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	inbound := make(chan ipc.Inbound, 32)
	for _, port := range []ipc.Port{ipc.PortServer, ipc.PortRequests} {
		path, _ := s.endpoints.Lookup(port)
		listener, err := ipc.Listen(ctx, path)
		if err != nil {
			return err
		}
		go ipc.Serve(serveCtx, listener, port, inbound, s.logger)
	}
	defer s.stopQuiesce()

	requests, _ := s.endpoints.Lookup(ipc.PortRequests)
	s.logger.Info("control server listening", logging.String("socket", requests))
	s.notify(ctx, ipc.NewMessage(ipc.KindServiceReady, 0, ""))

	for {
		var quiesce <-chan time.Time
		if s.quiesce != nil {
			quiesce = s.quiesce.C
		}
		select {
		case in := <-inbound:
			if exit := s.dispatch(ctx, in); exit {
				s.logger.Info("control server exiting")
				return nil
			}
		case <-quiesce:
			if s.quiescent() {
				s.flush(ctx, inbound)
				s.logger.Info("scan worker quiesced; control server exiting")
				return nil
			}
		case <-ctx.Done():
			s.shutdown()
			return nil
		}
	}
}

// dispatch handles one frame and reports whether the loop should exit.
func (s *Server) dispatch(ctx context.Context, in ipc.Inbound) bool {
	defer in.Close()
	if in.Port == ipc.PortServer {
		s.fromWorker(ctx, in.Msg)
		return false
	}
	return s.fromRequester(ctx, in)
}

func (s *Server) fromRequester(ctx context.Context, in ipc.Inbound) bool {
	msg := in.Msg
	ctx = services.WithRequestID(ctx, msg.RequestID())
	logger := logging.WithContext(ctx, s.logger)

	switch msg.Kind {
	case ipc.KindScanAll, ipc.KindScanSingle:
		if s.terminating {
			logging.WarnWithContext(logger, "rejecting scan during shutdown", "scan_rejected",
				logging.String("kind", msg.Kind.String()),
				logging.String(logging.FieldImpact, "the scan request was dropped"),
				logging.String(logging.FieldErrorHint, "resend after the daemon restarts"),
			)
			s.reply(logger, in, msg.Reframe(msg.Kind).WithPayload(nil))
			return false
		}
		if err := s.sup.Ensure(ctx); err != nil {
			logger.Error("worker handoff failed",
				logging.String("kind", msg.Kind.String()),
				logging.Error(err),
				logging.String(logging.FieldEventType, "worker_handoff_failed"),
				logging.String(logging.FieldErrorHint, "check worker socket permissions and scan.handoff_timeout_ms"),
				logging.String(logging.FieldImpact, "the scan request was dropped"),
			)
			s.reply(logger, in, msg.Reframe(msg.Kind).WithPayload(nil))
			return false
		}
		if err := s.forward(ctx, msg); err != nil {
			s.reply(logger, in, msg.Reframe(msg.Kind).WithPayload(nil))
			return false
		}
		s.reply(logger, in, msg.Reframe(msg.Kind))
		return false

	case ipc.KindCancel, ipc.KindCancelAll:
		if !s.sup.Running() {
			logger.Debug("cancel with no worker running", logging.String("kind", msg.Kind.String()))
			return false
		}
		_ = s.forward(ctx, msg)
		return false

	case ipc.KindKillService:
		if !s.sup.Running() {
			logger.Info("kill with no worker running")
			return true
		}
		if err := s.forward(ctx, msg); err != nil {
			s.sup.Stop()
		}
		s.beginTermination()
		return false

	default:
		logging.WarnWithContext(logger, "unexpected frame on requests endpoint", "request_unexpected_kind",
			logging.String("kind", msg.Kind.String()),
			logging.String(logging.FieldImpact, "the frame was ignored"),
			logging.String(logging.FieldErrorHint, "send SCAN_*, CANCEL* or KILL_SERVICE"),
		)
		return false
	}
}

func (s *Server) fromWorker(ctx context.Context, msg ipc.Message) {
	switch msg.Kind {
	case ipc.KindScanCompleted:
		s.logger.Debug("scan completed", logging.String("payload", msg.PayloadString()))
		s.notify(ctx, msg.Reframe(ipc.KindServiceCompleted))
	case ipc.KindScanTerminated:
		s.logger.Info("scan worker terminated")
		s.beginTermination()
	case ipc.KindScanReady:
		s.logger.Debug("scan worker announced readiness")
	default:
		logging.WarnWithContext(s.logger, "unexpected frame on server endpoint", "server_unexpected_kind",
			logging.String("kind", msg.Kind.String()),
			logging.String(logging.FieldImpact, "the frame was ignored"),
		)
	}
}

// beginTermination arms the quiescence check once.
func (s *Server) beginTermination() {
	if s.terminating {
		return
	}
	s.terminating = true
	s.deadline = time.Now().Add(s.maxWait)
	s.quiesce = time.NewTicker(s.interval)
}

// quiescent reports whether the loop may exit: the worker has returned or the
// wait bound has passed.
func (s *Server) quiescent() bool {
	select {
	case <-s.sup.Done():
		return true
	default:
	}
	if time.Now().Before(s.deadline) {
		return false
	}
	logging.WarnWithContext(s.logger, "scan worker did not quiesce in time", "quiescence_timeout",
		logging.Duration("max_wait", s.maxWait),
		logging.String(logging.FieldImpact, "the daemon exits with the worker still running"),
		logging.String(logging.FieldErrorHint, "raise scan.quiescence_max_wait_seconds if scans are slow to stop"),
	)
	s.sup.Stop()
	return true
}

// flush relays worker completions that arrived alongside SCAN_TERMINATED.
func (s *Server) flush(ctx context.Context, inbound <-chan ipc.Inbound) {
	for {
		select {
		case in := <-inbound:
			if in.Port == ipc.PortServer {
				s.fromWorker(ctx, in.Msg)
			}
			in.Close()
		default:
			return
		}
	}
}

// shutdown stops the worker when the daemon is signalled and waits for it
// within the quiescence bound.
func (s *Server) shutdown() {
	if !s.sup.Running() {
		return
	}
	s.sup.Stop()
	timer := time.NewTimer(s.maxWait)
	defer timer.Stop()
	select {
	case <-s.sup.Done():
	case <-timer.C:
		logging.WarnWithContext(s.logger, "scan worker still running at shutdown", "shutdown_timeout",
			logging.String(logging.FieldImpact, "in-flight scan results may be lost"),
		)
	}
}

func (s *Server) stopQuiesce() {
	if s.quiesce != nil {
		s.quiesce.Stop()
		s.quiesce = nil
	}
}

func (s *Server) forward(ctx context.Context, msg ipc.Message) error {
	path, _ := s.endpoints.Lookup(ipc.PortWorker)
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := ipc.Send(sendCtx, path, msg.Reframe(msg.Kind)); err != nil {
		logging.WarnWithContext(s.logger, "failed to forward command to worker", "worker_forward_failed",
			logging.String("kind", msg.Kind.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the command had no effect"),
			logging.String(logging.FieldErrorHint, "check the worker socket"),
		)
		return err
	}
	return nil
}

func (s *Server) notify(ctx context.Context, msg ipc.Message) {
	path, ok := s.endpoints.Lookup(ipc.PortNotify)
	if !ok {
		s.logger.Debug("no notify endpoint; dropping notice", logging.String("kind", msg.Kind.String()))
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := ipc.Send(sendCtx, path, msg); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ipc.ErrTransport) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "notice not delivered",
			logging.String("kind", msg.Kind.String()),
			logging.String("socket", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notify_send_failed"),
		)
	}
}

func (s *Server) reply(logger *slog.Logger, in ipc.Inbound, msg ipc.Message) {
	if err := in.Reply(msg); err != nil {
		logger.Debug("requester went away before reply", logging.Error(err))
	}
}
