package testsupport

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// FillImage returns a w x h RGBA image of a single color.
func FillImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// WriteJPEG writes a solid w x h JPEG to path.
func WriteJPEG(t testing.TB, path string, w, h int, c color.RGBA) {
	t.Helper()

	f := create(t, path)
	defer f.Close()
	if err := jpeg.Encode(f, FillImage(w, h, c), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg %s: %v", path, err)
	}
}

// WritePNG writes a solid w x h PNG to path.
func WritePNG(t testing.TB, path string, w, h int, c color.RGBA) {
	t.Helper()

	f := create(t, path)
	defer f.Close()
	if err := png.Encode(f, FillImage(w, h, c)); err != nil {
		t.Fatalf("encode png %s: %v", path, err)
	}
}

// WriteFile writes raw bytes to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func create(t testing.TB, path string) *os.File {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}
