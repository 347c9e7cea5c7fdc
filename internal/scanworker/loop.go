package scanworker

import (
	"context"
	"errors"
	"time"

	"facescan/internal/ipc"
	"facescan/internal/logging"
	"facescan/internal/pipeline"
	"facescan/internal/services"
)

const sendTimeout = 2 * time.Second

// loop dispatches inbound frames ahead of scan ticks. A tick runs only when
// no frame is waiting, so a command is never queued behind more than one item.
func (w *Worker) loop(ctx context.Context, inbound <-chan ipc.Inbound) error {
	defer w.closeScope()
	defer w.stopQuiesce()

	for {
		if w.quit {
			w.sendTerminated(ctx)
			return nil
		}

		select {
		case in := <-inbound:
			w.dispatch(ctx, in)
			continue
		case <-ctx.Done():
			return w.abandon()
		default:
		}

		if w.state == StateRunning {
			if delay := w.pace(); delay > 0 {
				w.idle(ctx, inbound, time.After(delay))
				continue
			}
			w.tick(ctx)
			continue
		}

		if ctx.Err() != nil {
			return w.abandon()
		}
		w.idle(ctx, inbound, nil)
	}
}

// idle blocks until a frame, a quiescence firing, wake, or ctx ends.
func (w *Worker) idle(ctx context.Context, inbound <-chan ipc.Inbound, wake <-chan time.Time) {
	var quiesce <-chan time.Time
	if w.quiesce != nil {
		quiesce = w.quiesce.C
	}
	select {
	case in := <-inbound:
		w.dispatch(ctx, in)
	case <-quiesce:
		w.checkQuiescence()
	case <-wake:
	case <-ctx.Done():
	}
}

// pace returns how long to wait before the next item may run. Drain ticks are
// never delayed.
func (w *Worker) pace() time.Duration {
	if w.limiter == nil || w.drainDue() {
		return 0
	}
	r := w.limiter.Reserve()
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
	}
	return delay
}

func (w *Worker) abandon() error {
	if w.state == StateRunning {
		logging.WarnWithContext(w.logger, "scan interrupted by shutdown", "scan_interrupted",
			logging.Int("remaining", w.all.remaining()),
			logging.String(logging.FieldImpact, "unprocessed items are picked up by the next scan-all"),
			logging.String(logging.FieldErrorHint, "none"),
		)
	}
	return nil
}

func (w *Worker) dispatch(ctx context.Context, in ipc.Inbound) {
	defer in.Close()
	msg := in.Msg
	ctx = services.WithRequestID(ctx, msg.RequestID())

	if w.killed {
		logging.WarnWithContext(w.logger, "ignoring command after kill", "command_after_kill",
			logging.String("kind", msg.Kind.String()),
			logging.String(logging.FieldImpact, "the command has no effect"),
			logging.String(logging.FieldErrorHint, "wait for the daemon to restart before sending new scans"),
		)
		return
	}

	switch msg.Kind {
	case ipc.KindScanAll:
		w.scanAll(ctx, msg.UID)
	case ipc.KindScanSingle:
		w.scanSingle(ctx, msg.UID, msg.PayloadString())
	case ipc.KindCancel:
		w.cancelPath(msg.PayloadString())
	case ipc.KindCancelAll:
		w.cancelAllItems()
	case ipc.KindKillService:
		w.kill(msg.UID)
	default:
		logging.WarnWithContext(w.logger, "unexpected frame on worker endpoint", "worker_unexpected_kind",
			logging.String("kind", msg.Kind.String()),
			logging.String(logging.FieldImpact, "the frame was ignored"),
		)
	}
}

func (w *Worker) scanAll(ctx context.Context, uid uint32) {
	if w.state == StateRunning {
		if !w.rescanPending {
			w.logger.Debug("scan-all already running; follow-up scheduled",
				logging.Int("remaining", w.all.remaining()),
			)
		}
		w.rescanPending = true
		w.rescanUID = uid
		return
	}
	w.prepareAll(ctx, uid)
}

// prepareAll opens the generation's ledger scope and loads unscanned items.
func (w *Worker) prepareAll(ctx context.Context, uid uint32) {
	w.state = StatePreparing
	w.allUID = uid
	w.cancelAll = false
	ctx = services.WithScanKind(ctx, KindAll.String())

	scope, err := w.open(ctx)
	if err != nil {
		w.state = StateIdle
		w.prepareFailed(ctx, KindAll, uid, "", err)
		return
	}
	rows, err := scope.UnscannedItems(ctx, w.includeRemovable())
	if err != nil {
		_ = scope.Close()
		w.state = StateIdle
		w.prepareFailed(ctx, KindAll, uid, "", err)
		return
	}
	if len(rows) == 0 {
		_ = scope.Close()
		w.state = StateIdle
		w.logger.Info("scan-all found nothing to scan")
		w.sendCompleted(ctx, uid, "")
		return
	}

	w.scope = scope
	w.all.load(rows, KindAll)
	w.gen = generation{started: time.Now(), total: len(rows)}
	w.state = StateRunning
	w.logger.Info("scan-all started", logging.Int("items", len(rows)))
}

func (w *Worker) prepareFailed(ctx context.Context, kind Kind, uid uint32, payload string, err error) {
	w.logger.Error("scan preparation failed",
		logging.String(logging.FieldScanKind, kind.String()),
		logging.Error(err),
		logging.String(logging.FieldEventType, "scan_prepare_failed"),
		logging.String(logging.FieldErrorHint, "check the catalog database path and permissions"),
		logging.String(logging.FieldImpact, "the request completes without scanning"),
	)
	w.sendCompleted(ctx, uid, payload)
}

// scanSingle resolves path and processes it synchronously with its own scope.
// A running ALL worklist is left untouched.
func (w *Worker) scanSingle(ctx context.Context, uid uint32, path string) {
	ctx = services.WithScanKind(ctx, KindSingle.String())
	if w.state == StateIdle {
		w.state = StatePreparing
		defer func() { w.state = StateIdle }()
	}

	scope, err := w.open(ctx)
	if err != nil {
		w.prepareFailed(ctx, KindSingle, uid, path, err)
		return
	}
	defer scope.Close()

	rows, err := scope.ItemsByPath(ctx, path, w.includeRemovable())
	if err != nil {
		w.prepareFailed(ctx, KindSingle, uid, path, err)
		return
	}
	if len(rows) > 1 {
		rows = rows[:1]
	}
	if len(rows) == 0 {
		w.logger.Info("scan-single path not in catalog", logging.String("path", path))
	}

	w.single.load(rows, KindSingle)
	for {
		item, ok := w.single.next()
		if !ok {
			break
		}
		w.process(ctx, scope, item)
	}
	w.single.clear()
	w.sendCompleted(ctx, uid, path)
}

func (w *Worker) cancelPath(path string) {
	if w.state != StateRunning {
		w.logger.Debug("cancel with no scan running", logging.String("path", path))
		return
	}
	dropped := w.all.dropPath(path)
	w.logger.Info("pending scan items cancelled",
		logging.String("path", path),
		logging.Int("dropped", dropped),
	)
}

func (w *Worker) cancelAllItems() {
	w.rescanPending = false
	if w.state != StateRunning {
		w.logger.Debug("cancel-all with no scan running")
		return
	}
	w.cancelAll = true
	w.logger.Info("scan-all cancellation requested", logging.Int("remaining", w.all.remaining()))
}

func (w *Worker) kill(uid uint32) {
	w.killed = true
	w.killUID = uid
	w.rescanPending = false
	w.logger.Info("kill requested", logging.String("state", w.state.String()))

	if w.all.drained() && w.single.drained() {
		w.quit = true
		return
	}
	w.quiesce = time.NewTicker(w.interval)
}

// drainDue reports whether the next tick drains instead of processing.
func (w *Worker) drainDue() bool {
	return w.killed || w.cancelAll || w.all.drained()
}

// tick processes one item or drains the ALL worklist.
func (w *Worker) tick(ctx context.Context) {
	if w.drainDue() {
		w.drain(ctx)
		return
	}
	item, ok := w.all.next()
	if !ok {
		return
	}
	w.process(services.WithScanKind(ctx, KindAll.String()), w.scope, item)
}

func (w *Worker) drain(ctx context.Context) {
	w.state = StateDrained
	remaining := w.all.remaining()
	w.all.clear()
	w.closeScope()

	attrs := []logging.Attr{
		logging.Int("items", w.gen.total),
		logging.Int("scanned", w.gen.scanned),
		logging.Int("faces", w.gen.faces),
		logging.Int("failed", w.gen.failed),
		logging.Int("skipped", w.gen.skipped),
		logging.Duration("elapsed", time.Since(w.gen.started)),
	}
	if remaining > 0 {
		attrs = append(attrs, logging.Int("abandoned", remaining))
	}
	w.logger.Info("scan-all drained", logging.Args(attrs...)...)

	w.cancelAll = false
	w.state = StateIdle
	if w.single.drained() {
		w.sendCompleted(ctx, w.allUID, "")
	}

	if w.rescanPending && !w.killed {
		w.rescanPending = false
		w.prepareAll(ctx, w.rescanUID)
	}
}

func (w *Worker) process(ctx context.Context, scope Scope, item Item) {
	res, err := w.step.Process(ctx, scope, item.MediaItem)
	if item.Kind == KindAll {
		w.record(res, err)
	}
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrAlreadyScanned), errors.Is(err, pipeline.ErrSkipped):
		w.logger.Debug("scan item short-circuited",
			logging.String(logging.FieldMediaID, item.MediaID),
			logging.Error(err),
		)
	default:
		logging.WarnWithContext(w.logger, "scan item failed", "scan_item_failed",
			logging.String(logging.FieldMediaID, item.MediaID),
			logging.String("path", item.Path),
			logging.Bool("recorded", res.Marked),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no faces stored for this item"),
			logging.String(logging.FieldErrorHint, "check the image file and detector configuration"),
		)
	}
}

func (w *Worker) record(res pipeline.Result, err error) {
	switch {
	case err == nil:
		w.gen.scanned++
	case errors.Is(err, pipeline.ErrAlreadyScanned), errors.Is(err, pipeline.ErrSkipped):
		w.gen.skipped++
	default:
		w.gen.failed++
	}
	w.gen.faces += res.Faces
}

// checkQuiescence runs on each quiescence firing after kill. The worker has
// no deadline of its own; the server bounds the wait and cancels it.
func (w *Worker) checkQuiescence() {
	if w.all.drained() && w.single.drained() {
		w.quit = true
	}
}

func (w *Worker) stopQuiesce() {
	if w.quiesce != nil {
		w.quiesce.Stop()
		w.quiesce = nil
	}
}

func (w *Worker) closeScope() {
	if w.scope == nil {
		return
	}
	if err := w.scope.Close(); err != nil {
		w.logger.Debug("closing ledger scope failed", logging.Error(err))
	}
	w.scope = nil
}

func (w *Worker) includeRemovable() bool {
	return w.mounts != nil && w.mounts.Mounted()
}

func (w *Worker) sendCompleted(ctx context.Context, uid uint32, payload string) {
	w.sendToServer(ctx, ipc.NewMessage(ipc.KindScanCompleted, uid, payload))
}

func (w *Worker) sendTerminated(ctx context.Context) {
	if w.terminated {
		return
	}
	w.terminated = true
	w.closeScope()
	w.logger.Info("scan worker terminating")
	w.sendToServer(ctx, ipc.NewMessage(ipc.KindScanTerminated, w.killUID, ""))
}

func (w *Worker) sendToServer(ctx context.Context, m ipc.Message) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := w.send(sendCtx, m); err != nil {
		logging.WarnWithContext(w.logger, "failed to reach control server", "worker_send_failed",
			logging.String("kind", m.Kind.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the requester may not see this completion"),
			logging.String(logging.FieldErrorHint, "check that the server socket exists"),
		)
	}
}
