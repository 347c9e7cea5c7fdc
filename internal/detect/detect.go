// Package detect finds faces in decoded pixel buffers.
//
// The production detector runs a pigo pixel-intensity cascade loaded from
// detect.cascade_path. Without a cascade the Nop detector is used so the rest
// of the pipeline (ledger bookkeeping, color extraction) still runs.
package detect

import (
	"context"
	"fmt"
	"os"
	"strings"

	pigo "github.com/esimov/pigo/core"

	"facescan/internal/config"
	"facescan/internal/imaging"
	"facescan/internal/services"
)

// Rect is a face rectangle in buffer pixel space.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// Scale multiplies every coordinate by factor.
func (r Rect) Scale(factor float64) Rect {
	return Rect{
		X: int(float64(r.X) * factor),
		Y: int(float64(r.Y) * factor),
		W: int(float64(r.W) * factor),
		H: int(float64(r.H) * factor),
	}
}

// Detector locates faces in a buffer.
type Detector interface {
	Detect(ctx context.Context, buf *imaging.Buffer) ([]Rect, error)
}

// New builds the detector described by cfg.
func New(cfg config.Detect) (Detector, error) {
	path := strings.TrimSpace(cfg.CascadePath)
	if path == "" {
		return Nop{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "detect", "load cascade", path, err)
	}
	return NewCascade(data, cfg)
}

// Nop reports no faces.
type Nop struct{}

func (Nop) Detect(context.Context, *imaging.Buffer) ([]Rect, error) { return nil, nil }

// Cascade runs a pigo face classifier.
type Cascade struct {
	classifier *pigo.Pigo
	cfg        config.Detect
}

// NewCascade unpacks a pigo cascade.
func NewCascade(cascade []byte, cfg config.Detect) (*Cascade, error) {
	classifier, err := unpack(cascade)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "detect", "unpack cascade", "", err)
	}
	return &Cascade{classifier: classifier, cfg: cfg}, nil
}

func unpack(cascade []byte) (classifier *pigo.Pigo, err error) {
	// Unpack indexes into the packet without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed cascade: %v", r)
		}
	}()
	return pigo.NewPigo().Unpack(cascade)
}

// Detect runs the cascade over the buffer's luma plane.
func (c *Cascade) Detect(ctx context.Context, buf *imaging.Buffer) ([]Rect, error) {
	if buf == nil || len(buf.Pix) == 0 {
		return nil, services.Wrap(services.ErrPipelineStep, "detect", "run", "empty buffer", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "detect", "run", "canceled", err)
	}

	params := pigo.CascadeParams{
		MinSize:     c.cfg.MinSize,
		MaxSize:     c.cfg.MaxSize,
		ShiftFactor: c.cfg.ShiftFactor,
		ScaleFactor: c.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: buf.Luma(),
			Rows:   buf.Height,
			Cols:   buf.Width,
			Dim:    buf.Width,
		},
	}
	dets := c.classifier.RunCascade(params, 0)
	dets = c.classifier.ClusterDetections(dets, c.cfg.IoUThreshold)
	return toRects(dets, float32(c.cfg.MinQuality), buf.Width, buf.Height), nil
}

// toRects converts centre/scale detections to clamped rectangles, dropping
// those below minQuality.
func toRects(dets []pigo.Detection, minQuality float32, width, height int) []Rect {
	rects := make([]Rect, 0, len(dets))
	for _, d := range dets {
		if d.Q < minQuality || d.Scale <= 0 {
			continue
		}
		x := max(d.Col-d.Scale/2, 0)
		y := max(d.Row-d.Scale/2, 0)
		w := min(d.Scale, width-x)
		h := min(d.Scale, height-y)
		if w <= 0 || h <= 0 {
			continue
		}
		rects = append(rects, Rect{X: x, Y: y, W: w, H: h})
	}
	return rects
}
