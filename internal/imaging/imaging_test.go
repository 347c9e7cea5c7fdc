package imaging_test

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"facescan/internal/imaging"
	"facescan/internal/services"
	"facescan/internal/testsupport"
)

func TestFormatForMIME(t *testing.T) {
	cases := map[string]imaging.Format{
		"image/jpeg": imaging.FormatRGB,
		"image/png":  imaging.FormatRGBA,
		"image/bmp":  imaging.FormatRGBA,
	}
	for mime, want := range cases {
		got, err := imaging.FormatForMIME(mime)
		if err != nil || got != want {
			t.Fatalf("FormatForMIME(%q) = %v, %v; want %v", mime, got, err, want)
		}
	}
	if _, err := imaging.FormatForMIME("image/gif"); !errors.Is(err, services.ErrPipelineStep) {
		t.Fatalf("expected unsupported mime error, got %v", err)
	}
}

func TestOptimizedSize(t *testing.T) {
	cases := []struct {
		w, h, wantW, wantH int
	}{
		{640, 480, 640, 480},
		{1280, 720, 1280, 720},
		{4000, 3000, 1280, 960},
		{3000, 4000, 540, 720},
		{2000, 2000, 720, 720},
	}
	for _, tc := range cases {
		gotW, gotH := imaging.OptimizedSize(tc.w, tc.h)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Fatalf("OptimizedSize(%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestScaleFactorUsesDominantAxis(t *testing.T) {
	if got := imaging.ScaleFactor(4000, 3000, 1280, 960); got != 3.125 {
		t.Fatalf("landscape factor = %v", got)
	}
	// portrait original decoded and rotated into a landscape buffer
	if got := imaging.ScaleFactor(3000, 4000, 720, 540); got != 4000.0/720.0 {
		t.Fatalf("rotated factor = %v", got)
	}
	if got := imaging.ScaleFactor(640, 480, 640, 480); got != 1 {
		t.Fatalf("unscaled factor = %v", got)
	}
}

func TestDecodeJPEGResizesAndRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.jpg")
	testsupport.WriteJPEG(t, path, 1600, 900, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	w, h, err := imaging.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if w != 1600 || h != 900 {
		t.Fatalf("Probe = %dx%d", w, h)
	}

	buf, err := imaging.Decode(path, imaging.FormatRGB, imaging.Rotate90, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Width != 720 || buf.Height != 1280 {
		t.Fatalf("expected rotated 720x1280 buffer, got %dx%d", buf.Width, buf.Height)
	}
	if len(buf.Pix) != 720*1280*3 || buf.Stride() != 720*3 {
		t.Fatalf("unexpected packed size %d stride %d", len(buf.Pix), buf.Stride())
	}
	buf.Release()
	if buf.Pix != nil {
		t.Fatal("expected pixels released")
	}
}

func TestDecodeWithoutResizeKeepsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	testsupport.WritePNG(t, path, 1400, 800, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	buf, err := imaging.Decode(path, imaging.FormatRGBA, imaging.Rotate0, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Width != 1400 || buf.Height != 800 || len(buf.Pix) != 1400*800*4 {
		t.Fatalf("unexpected buffer %dx%d len=%d", buf.Width, buf.Height, len(buf.Pix))
	}
}

func TestDecodeRotationMovesPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{B: 255, A: 255})
	path := filepath.Join(t.TempDir(), "pair.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = f.Close()

	buf, err := imaging.Decode(path, imaging.FormatRGBA, imaging.Rotate90, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Width != 1 || buf.Height != 2 {
		t.Fatalf("expected 1x2, got %dx%d", buf.Width, buf.Height)
	}
	// clockwise: left pixel ends on top
	if buf.Pix[0] != 255 || buf.Pix[6] != 255 {
		t.Fatalf("unexpected rotated pixels %v", buf.Pix)
	}

	flipped, err := imaging.Decode(path, imaging.FormatRGBA, imaging.Rotate180, false)
	if err != nil {
		t.Fatalf("Decode 180: %v", err)
	}
	if flipped.Pix[2] != 255 || flipped.Pix[4] != 255 {
		t.Fatalf("unexpected 180 pixels %v", flipped.Pix)
	}
}

func TestDecodeMissingFileIsNotFound(t *testing.T) {
	_, err := imaging.Decode(filepath.Join(t.TempDir(), "nope.jpg"), imaging.FormatRGB, 0, true)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAverageColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solid.png")
	testsupport.WritePNG(t, path, 8, 8, color.RGBA{R: 40, G: 80, B: 120, A: 255})
	buf, err := imaging.Decode(path, imaging.FormatRGBA, 0, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, g, b, err := imaging.AverageColor(buf)
	if err != nil {
		t.Fatalf("AverageColor: %v", err)
	}
	if r != 40 || g != 80 || b != 120 {
		t.Fatalf("unexpected color %d,%d,%d", r, g, b)
	}
	if _, _, _, err := imaging.AverageColor(&imaging.Buffer{Format: imaging.FormatRGB}); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}
