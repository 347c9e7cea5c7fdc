package pipeline_test

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"facescan/internal/detect"
	"facescan/internal/imaging"
	"facescan/internal/ledger"
	"facescan/internal/pipeline"
	"facescan/internal/services"
	"facescan/internal/testsupport"
)

type stubDetector struct {
	rects []detect.Rect
	err   error

	mu    sync.Mutex
	sizes [][2]int
}

func (d *stubDetector) Detect(_ context.Context, buf *imaging.Buffer) ([]detect.Rect, error) {
	d.mu.Lock()
	d.sizes = append(d.sizes, [2]int{buf.Width, buf.Height})
	d.mu.Unlock()
	return d.rects, d.err
}

func (d *stubDetector) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sizes)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices map[string]int
}

func (n *recordingNotifier) NotifyFacesDetected(_ context.Context, mediaID string, faces int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notices == nil {
		n.notices = make(map[string]int)
	}
	n.notices[mediaID] = faces
	return nil
}

type fixture struct {
	ledger   *ledger.Ledger
	dir      string
	detector *stubDetector
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return &fixture{
		ledger:   testsupport.MustOpenLedger(t, cfg),
		dir:      testsupport.BaseDir(cfg),
		detector: &stubDetector{},
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) step(opts pipeline.Options) *pipeline.Step {
	return pipeline.New(nil, f.detector, f.notifier, opts, nil)
}

func (f *fixture) addJPEG(t *testing.T, name string, w, h int, withDims bool) ledger.MediaItem {
	t.Helper()
	path := filepath.Join(f.dir, name)
	testsupport.WriteJPEG(t, path, w, h, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	item := ledger.MediaItem{Path: path, StorageID: "internal", MIMEType: "image/jpeg"}
	if withDims {
		item.Width, item.Height = w, h
	}
	return testsupport.AddMedia(t, f.ledger, item)
}

func TestProcessStoresFacesAndMarksScanned(t *testing.T) {
	f := newFixture(t)
	f.detector.rects = []detect.Rect{{X: 10, Y: 10, W: 20, H: 20}, {X: 40, Y: 5, W: 10, H: 10}}
	item := f.addJPEG(t, "a.jpg", 64, 48, true)

	res, err := f.step(pipeline.Options{}).Process(context.Background(), f.ledger, item)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Faces != 2 || !res.Marked {
		t.Fatalf("unexpected result %+v", res)
	}

	faces, err := f.ledger.FacesForMedia(context.Background(), item.MediaID)
	if err != nil {
		t.Fatalf("FacesForMedia: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].FaceID == "" || faces[0].FaceID == faces[1].FaceID {
		t.Fatalf("expected distinct face ids, got %+v", faces)
	}
	if got := f.notifier.notices[item.MediaID]; got != 2 {
		t.Fatalf("expected face notice with 2 faces, got %d", got)
	}

	scanned, err := f.ledger.IsScanned(context.Background(), item.MediaID)
	if err != nil || !scanned {
		t.Fatalf("expected item scanned, got %v err=%v", scanned, err)
	}
}

func TestProcessAlreadyScannedSkipsDetection(t *testing.T) {
	f := newFixture(t)
	item := f.addJPEG(t, "a.jpg", 32, 32, true)
	step := f.step(pipeline.Options{})

	if _, err := step.Process(context.Background(), f.ledger, item); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	_, err := step.Process(context.Background(), f.ledger, item)
	if !errors.Is(err, pipeline.ErrAlreadyScanned) {
		t.Fatalf("expected ErrAlreadyScanned, got %v", err)
	}
	if calls := f.detector.calls(); calls != 1 {
		t.Fatalf("expected one detector call, got %d", calls)
	}
}

func TestProcessMissingFileIsSkippedWithoutLedgerWrite(t *testing.T) {
	f := newFixture(t)
	item := testsupport.AddMedia(t, f.ledger, ledger.MediaItem{
		Path:      filepath.Join(f.dir, "gone.jpg"),
		StorageID: "internal",
		MIMEType:  "image/jpeg",
	})

	res, err := f.step(pipeline.Options{}).Process(context.Background(), f.ledger, item)
	if !errors.Is(err, pipeline.ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
	if res.Marked {
		t.Fatal("missing file must not be marked")
	}
	scanned, _ := f.ledger.IsScanned(context.Background(), item.MediaID)
	if scanned {
		t.Fatal("missing file recorded in scan ledger")
	}
}

func TestProcessDecodeFailureStillMarks(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "broken.jpg")
	testsupport.WriteFile(t, path, []byte("not a jpeg"))
	item := testsupport.AddMedia(t, f.ledger, ledger.MediaItem{
		Path:      path,
		StorageID: "internal",
		MIMEType:  "image/jpeg",
		Width:     10,
		Height:    10,
	})

	res, err := f.step(pipeline.Options{}).Process(context.Background(), f.ledger, item)
	if !errors.Is(err, services.ErrPipelineStep) {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	if !res.Marked {
		t.Fatal("permanent failure should still be recorded")
	}
	if f.detector.calls() != 0 {
		t.Fatal("detector should not run after decode failure")
	}
}

func TestProcessUnsupportedMIMEStillMarks(t *testing.T) {
	f := newFixture(t)
	item := f.addJPEG(t, "clip.jpg", 16, 16, true)
	item.MIMEType = "video/mp4"

	res, err := f.step(pipeline.Options{}).Process(context.Background(), f.ledger, item)
	if err == nil || !res.Marked {
		t.Fatalf("expected marked failure, got res=%+v err=%v", res, err)
	}
}

func TestProcessTransientFailureLeavesItemUnmarked(t *testing.T) {
	f := newFixture(t)
	f.detector.err = services.Wrap(services.ErrTransient, "detect", "run", "busy", nil)
	item := f.addJPEG(t, "a.jpg", 32, 32, true)

	res, err := f.step(pipeline.Options{}).Process(context.Background(), f.ledger, item)
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if res.Marked {
		t.Fatal("transient failure must not be marked")
	}
	scanned, _ := f.ledger.IsScanned(context.Background(), item.MediaID)
	if scanned {
		t.Fatal("transient failure recorded in scan ledger")
	}
}

func TestProcessScalesFacesBackToOriginalSize(t *testing.T) {
	f := newFixture(t)
	f.detector.rects = []detect.Rect{{X: 100, Y: 50, W: 40, H: 40}}
	item := f.addJPEG(t, "big.jpg", 2560, 1440, false)

	res, err := f.step(pipeline.Options{OptimizeDecode: true}).Process(context.Background(), f.ledger, item)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Faces != 1 {
		t.Fatalf("expected one face, got %+v", res)
	}
	if got := f.detector.sizes[0]; got != [2]int{1280, 720} {
		t.Fatalf("expected optimized decode 1280x720, got %v", got)
	}

	faces, err := f.ledger.FacesForMedia(context.Background(), item.MediaID)
	if err != nil || len(faces) != 1 {
		t.Fatalf("FacesForMedia: %v %v", faces, err)
	}
	face := faces[0]
	if face.X != 200 || face.Y != 100 || face.W != 80 || face.H != 80 {
		t.Fatalf("expected face scaled by 2, got %+v", face)
	}
}

func TestProcessExtractsColor(t *testing.T) {
	f := newFixture(t)
	item := f.addJPEG(t, "a.jpg", 16, 16, true)

	if _, err := f.step(pipeline.Options{ExtractColor: true}).Process(context.Background(), f.ledger, item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	c, ok, err := f.ledger.MediaColor(context.Background(), item.MediaID)
	if err != nil || !ok {
		t.Fatalf("expected color stored, ok=%v err=%v", ok, err)
	}
	if c.R < 150 || c.G > 90 {
		t.Fatalf("unexpected average color %+v", c)
	}
}

func TestProcessNoFacesSendsNoNotice(t *testing.T) {
	f := newFixture(t)
	item := f.addJPEG(t, "a.jpg", 16, 16, true)

	if _, err := f.step(pipeline.Options{}).Process(context.Background(), f.ledger, item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(f.notifier.notices) != 0 {
		t.Fatalf("unexpected notices %v", f.notifier.notices)
	}
}
