package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"facescan/internal/detect"
	"facescan/internal/imaging"
	"facescan/internal/ledger"
	"facescan/internal/logging"
	"facescan/internal/notifications"
	"facescan/internal/services"
)

var (
	// ErrAlreadyScanned reports an item the scan ledger already holds.
	ErrAlreadyScanned = errors.New("media already scanned")
	// ErrSkipped reports an item whose file is missing or not a regular file.
	ErrSkipped = errors.New("media skipped")
)

// Ledger is the subset of the catalog the step reads and writes.
type Ledger interface {
	IsScanned(ctx context.Context, mediaID string) (bool, error)
	MarkScanned(ctx context.Context, mediaID, storageID string) error
	InsertFace(ctx context.Context, f ledger.Face) (string, error)
	UpdateColor(ctx context.Context, mediaID, storageID string, c ledger.Color) error
}

// Decoder turns image files into pixel buffers.
type Decoder interface {
	Probe(path string) (int, int, error)
	Decode(path string, format imaging.Format, orientation int, resize bool) (*imaging.Buffer, error)
}

// ImageDecoder is the production Decoder backed by package imaging.
type ImageDecoder struct{}

func (ImageDecoder) Probe(path string) (int, int, error) { return imaging.Probe(path) }

func (ImageDecoder) Decode(path string, format imaging.Format, orientation int, resize bool) (*imaging.Buffer, error) {
	return imaging.Decode(path, format, orientation, resize)
}

// Options toggles optional step behaviour.
type Options struct {
	OptimizeDecode bool
	ExtractColor   bool
}

// Result summarises one processed item.
type Result struct {
	Faces       int
	FailedFaces int
	Marked      bool
	Elapsed     time.Duration
}

// Step processes one catalog item at a time.
type Step struct {
	decoder  Decoder
	detector detect.Detector
	notifier notifications.Service
	opts     Options
	logger   *slog.Logger
}

// New builds a Step. Nil collaborators fall back to the imaging decoder, the
// no-op detector, and a silent notifier.
func New(decoder Decoder, detector detect.Detector, notifier notifications.Service, opts Options, logger *slog.Logger) *Step {
	if decoder == nil {
		decoder = ImageDecoder{}
	}
	if detector == nil {
		detector = detect.Nop{}
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Step{
		decoder:  decoder,
		detector: detector,
		notifier: notifier,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Process runs the step for item against l. The returned error describes the
// item failure, if any; a non-nil error does not mean the item was left
// unmarked (see Result.Marked).
func (s *Step) Process(ctx context.Context, l Ledger, item ledger.MediaItem) (Result, error) {
	start := time.Now()
	ctx = services.WithMediaID(ctx, item.MediaID)
	logger := logging.WithContext(ctx, s.logger)

	info, err := os.Stat(item.Path)
	if err != nil || !info.Mode().IsRegular() {
		logger.Debug("media file missing; skipping", logging.String("path", item.Path))
		return Result{}, fmt.Errorf("%w: %s", ErrSkipped, item.Path)
	}

	scanned, err := l.IsScanned(ctx, item.MediaID)
	if err != nil {
		return Result{}, err
	}
	if scanned {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyScanned, item.MediaID)
	}

	res, procErr := s.analyse(ctx, l, item, logger)
	if ctxErr := ctx.Err(); ctxErr != nil && res.Faces == 0 {
		res.Elapsed = time.Since(start)
		return res, services.Wrap(services.ErrTransient, "scan", "process", item.Path, ctxErr)
	}

	if services.IsTransient(procErr) && res.Faces == 0 {
		logging.WarnWithContext(logger, "transient scan failure; item left for retry", "scan_item_deferred",
			logging.String("path", item.Path),
			logging.Error(procErr),
			logging.String(logging.FieldImpact, "the item is rescanned by the next scan-all"),
			logging.String(logging.FieldErrorHint, "check catalog database contention"),
		)
		res.Elapsed = time.Since(start)
		return res, procErr
	}

	// Faces are already stored; record the item even if the scan was canceled.
	markCtx := ctx
	if ctx.Err() != nil {
		markCtx = context.WithoutCancel(ctx)
	}
	switch err := l.MarkScanned(markCtx, item.MediaID, item.StorageID); {
	case err == nil:
		res.Marked = true
	case errors.Is(err, ledger.ErrDuplicate):
		res.Marked = true
		logger.Debug("scan ledger entry already present", logging.String("path", item.Path))
	default:
		procErr = errors.Join(procErr, err)
	}
	res.Elapsed = time.Since(start)

	if procErr != nil {
		return res, procErr
	}
	logger.Debug("media scanned",
		logging.String("path", item.Path),
		logging.Int("faces", res.Faces),
		logging.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// analyse covers the decode, detect, and persist stages.
func (s *Step) analyse(ctx context.Context, l Ledger, item ledger.MediaItem, logger *slog.Logger) (Result, error) {
	var res Result

	width, height := item.Width, item.Height
	if width <= 0 || height <= 0 {
		w, h, err := s.decoder.Probe(item.Path)
		if err != nil {
			return res, err
		}
		width, height = w, h
	}

	format, err := imaging.FormatForMIME(item.MIMEType)
	if err != nil {
		return res, err
	}

	buf, err := s.decoder.Decode(item.Path, format, item.Orientation, s.opts.OptimizeDecode)
	if err != nil {
		return res, err
	}
	defer buf.Release()

	if s.opts.ExtractColor {
		s.storeColor(ctx, l, item, buf, logger)
	}

	rects, err := s.detector.Detect(ctx, buf)
	if err != nil {
		return res, err
	}

	factor := imaging.ScaleFactor(width, height, buf.Width, buf.Height)
	var persistErrs []error
	for _, rect := range rects {
		if factor > 1 {
			rect = rect.Scale(factor)
		}
		_, err := l.InsertFace(ctx, ledger.Face{
			MediaID:     item.MediaID,
			X:           rect.X,
			Y:           rect.Y,
			W:           rect.W,
			H:           rect.H,
			Orientation: item.Orientation,
		})
		if err != nil {
			res.FailedFaces++
			persistErrs = append(persistErrs, err)
			continue
		}
		res.Faces++
	}

	if res.Faces > 0 {
		if err := s.notifier.NotifyFacesDetected(ctx, item.MediaID, res.Faces); err != nil {
			logging.WarnWithContext(logger, "face notice not delivered", "face_notice_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "face consumers miss this update until they resync"),
				logging.String(logging.FieldErrorHint, "check notify.face_udp_addr"),
			)
		}
	}

	if len(persistErrs) > 0 {
		return res, services.Wrap(services.ErrPipelineStep, "persist", "insert_face",
			fmt.Sprintf("%d of %d faces not stored", res.FailedFaces, len(rects)), errors.Join(persistErrs...))
	}
	return res, nil
}

func (s *Step) storeColor(ctx context.Context, l Ledger, item ledger.MediaItem, buf *imaging.Buffer, logger *slog.Logger) {
	r, g, b, err := imaging.AverageColor(buf)
	if err == nil {
		err = l.UpdateColor(ctx, item.MediaID, item.StorageID, ledger.Color{R: r, G: g, B: b})
	}
	if err != nil {
		logging.WarnWithContext(logger, "color extraction failed", "color_extract_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "media color stays unset"),
		)
	}
}
