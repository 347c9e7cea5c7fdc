package control_test

import (
	"context"
	"fmt"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"facescan/internal/config"
	"facescan/internal/control"
	"facescan/internal/ipc"
	"facescan/internal/ledger"
	"facescan/internal/pipeline"
	"facescan/internal/scanworker"
	"facescan/internal/supervisor"
	"facescan/internal/testsupport"
)

type gatedStep struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStep) Process(context.Context, pipeline.Ledger, ledger.MediaItem) (pipeline.Result, error) {
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	return pipeline.Result{Marked: true}, nil
}

// blockingStep holds the first item until the worker context is cancelled.
type blockingStep struct {
	started  chan struct{}
	canceled chan struct{}
	once     sync.Once
}

func newBlockingStep() *blockingStep {
	return &blockingStep{started: make(chan struct{}), canceled: make(chan struct{})}
}

func (s *blockingStep) Process(ctx context.Context, _ pipeline.Ledger, _ ledger.MediaItem) (pipeline.Result, error) {
	first := false
	s.once.Do(func() { first = true })
	if !first {
		return pipeline.Result{Marked: true}, nil
	}
	close(s.started)
	<-ctx.Done()
	close(s.canceled)
	return pipeline.Result{}, ctx.Err()
}

func (s *blockingStep) expectCanceled(t *testing.T) {
	t.Helper()
	select {
	case <-s.canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("worker context was not cancelled")
	}
}

type stubSupervisor struct {
	ensureErr error
	done      chan struct{}
}

func (s *stubSupervisor) Ensure(context.Context) error { return s.ensureErr }
func (s *stubSupervisor) Running() bool                { return false }
func (s *stubSupervisor) Done() <-chan struct{}        { return s.done }
func (s *stubSupervisor) Stop()                        {}

type harness struct {
	t       *testing.T
	cfg     *config.Config
	ledger  *ledger.Ledger
	sup     control.Supervisor
	notices chan ipc.Inbound
	done    chan error
	stop    context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		t:       t,
		cfg:     cfg,
		ledger:  testsupport.MustOpenLedger(t, cfg),
		notices: make(chan ipc.Inbound, 16),
		done:    make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	listener, err := ipc.Listen(ctx, cfg.Sockets.Notify)
	if err != nil {
		t.Fatalf("listen notify: %v", err)
	}
	go ipc.Serve(ctx, listener, ipc.PortNotify, h.notices, nil)
	return h
}

func (h *harness) withWorker(deps scanworker.Dependencies) *harness {
	worker := scanworker.New(h.cfg, deps, nil)
	h.sup = supervisor.New(worker.Run, h.cfg.HandoffTimeout(), nil)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	srv := control.New(h.cfg, h.sup, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go func() { h.done <- srv.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			h.t.Error("server did not stop")
		}
	})
	h.expectNotice(ipc.KindServiceReady)
}

func (h *harness) addImage(name string) ledger.MediaItem {
	h.t.Helper()
	path := filepath.Join(testsupport.BaseDir(h.cfg), name)
	testsupport.WriteJPEG(h.t, path, 16, 16, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	return testsupport.AddMedia(h.t, h.ledger, ledger.MediaItem{
		Path:      path,
		StorageID: "internal",
		MIMEType:  "image/jpeg",
	})
}

func (h *harness) request(kind ipc.Kind, uid uint32, payload string) ipc.Message {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := ipc.Request(ctx, h.cfg.Sockets.Requests, ipc.NewMessage(kind, uid, payload))
	if err != nil {
		h.t.Fatalf("request %s: %v", kind, err)
	}
	return reply
}

func (h *harness) send(kind ipc.Kind) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ipc.Send(ctx, h.cfg.Sockets.Requests, ipc.NewMessage(kind, 0, "")); err != nil {
		h.t.Fatalf("send %s: %v", kind, err)
	}
}

func (h *harness) expectNotice(kind ipc.Kind) ipc.Message {
	h.t.Helper()
	select {
	case in := <-h.notices:
		in.Close()
		if in.Msg.Kind != kind {
			h.t.Fatalf("expected %s notice, got %s", kind, in.Msg.Kind)
		}
		return in.Msg
	case <-time.After(5 * time.Second):
		h.t.Fatalf("timed out waiting for %s notice", kind)
	}
	return ipc.Message{}
}

func (h *harness) expectExit() {
	h.t.Helper()
	select {
	case err := <-h.done:
		if err != nil {
			h.t.Fatalf("server exited with error: %v", err)
		}
		h.done <- nil
	case <-time.After(5 * time.Second):
		h.t.Fatal("server did not exit")
	}
}

func TestScanAllIsEchoedAndCompletionRelayed(t *testing.T) {
	h := newHarness(t).withWorker(scanworker.Dependencies{})
	h.addImage("a.jpg")
	h.addImage("b.jpg")
	h.start()

	reply := h.request(ipc.KindScanAll, 9, "")
	if reply.Kind != ipc.KindScanAll || reply.UID != 9 {
		t.Fatalf("unexpected echo %+v", reply)
	}
	done := h.expectNotice(ipc.KindServiceCompleted)
	if done.UID != 9 {
		t.Fatalf("expected completion uid 9, got %d", done.UID)
	}

	stats, err := h.ledger.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Scanned != 2 || stats.Pending != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestScanSingleCompletionCarriesPath(t *testing.T) {
	h := newHarness(t).withWorker(scanworker.Dependencies{})
	a := h.addImage("a.jpg")
	h.start()

	reply := h.request(ipc.KindScanSingle, 3, a.Path)
	if reply.PayloadString() != a.Path {
		t.Fatalf("unexpected echo payload %q", reply.PayloadString())
	}
	done := h.expectNotice(ipc.KindServiceCompleted)
	if done.PayloadString() != a.Path {
		t.Fatalf("expected completion for %s, got %q", a.Path, done.PayloadString())
	}
}

func TestKillWithoutWorkerExitsImmediately(t *testing.T) {
	h := newHarness(t).withWorker(scanworker.Dependencies{})
	h.start()

	h.send(ipc.KindKillService)
	h.expectExit()
	if h.sup.Running() {
		t.Fatal("worker started by kill")
	}
}

func TestKillMidScanWaitsForQuiescence(t *testing.T) {
	step := &gatedStep{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t).withWorker(scanworker.Dependencies{Step: step})
	for i := 0; i < 3; i++ {
		h.addImage(fmt.Sprintf("%d.jpg", i))
	}
	h.start()

	h.request(ipc.KindScanAll, 1, "")
	<-step.started
	h.send(ipc.KindKillService)

	select {
	case <-h.done:
		t.Fatal("server exited before the worker quiesced")
	case <-time.After(150 * time.Millisecond):
	}

	close(step.release)
	h.expectNotice(ipc.KindServiceCompleted)
	h.expectExit()
	select {
	case <-h.sup.Done():
	default:
		t.Fatal("server exited while the worker was still running")
	}
}

func TestHandoffFailureEchoesEmptyPayload(t *testing.T) {
	h := newHarness(t)
	h.sup = &stubSupervisor{
		ensureErr: fmt.Errorf("%w: no readiness", supervisor.ErrHandoffFailed),
		done:      make(chan struct{}),
	}
	h.start()

	reply := h.request(ipc.KindScanSingle, 5, "/photos/a.jpg")
	if reply.Kind != ipc.KindScanSingle || reply.UID != 5 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if len(reply.Payload) != 0 {
		t.Fatalf("expected empty payload on handoff failure, got %q", reply.PayloadString())
	}
}

func TestCancelWithoutWorkerIsIgnored(t *testing.T) {
	h := newHarness(t).withWorker(scanworker.Dependencies{})
	h.start()

	h.send(ipc.KindCancelAll)
	h.send(ipc.KindKillService)
	h.expectExit()
}

func TestKillPastMaxWaitStopsWorker(t *testing.T) {
	step := newBlockingStep()
	h := newHarness(t)
	h.cfg.Scan.QuiescenceMaxWaitSeconds = 1
	h.withWorker(scanworker.Dependencies{Step: step})
	h.addImage("a.jpg")
	h.addImage("b.jpg")
	h.start()

	h.request(ipc.KindScanAll, 1, "")
	<-step.started
	killed := time.Now()
	h.send(ipc.KindKillService)

	select {
	case <-h.done:
		t.Fatal("server exited before the wait bound")
	case <-time.After(500 * time.Millisecond):
	}

	h.expectExit()
	if waited := time.Since(killed); waited < time.Second {
		t.Fatalf("server exited after %v, before the 1s bound", waited)
	}
	step.expectCanceled(t)
	select {
	case <-h.sup.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker still running after stop")
	}
}

func TestShutdownDuringScanStopsWorker(t *testing.T) {
	step := newBlockingStep()
	h := newHarness(t).withWorker(scanworker.Dependencies{Step: step})
	h.addImage("a.jpg")
	h.start()

	h.request(ipc.KindScanAll, 1, "")
	<-step.started
	h.stop()

	h.expectExit()
	step.expectCanceled(t)
	select {
	case <-h.sup.Done():
	default:
		t.Fatal("server returned before the worker exited")
	}
}
