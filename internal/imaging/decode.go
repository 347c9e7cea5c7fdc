package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"facescan/internal/services"
)

// Orientation values stored in the catalog. Rotation is clockwise.
const (
	Rotate0   = 0
	Rotate90  = 1
	Rotate180 = 2
	Rotate270 = 3
)

// Buffer is a decoded, packed pixel buffer.
type Buffer struct {
	Format Format
	Width  int
	Height int
	Pix    []byte
}

// Stride is the byte length of one row.
func (b *Buffer) Stride() int {
	return b.Width * b.Format.BytesPerPixel()
}

// Release drops the pixel data.
func (b *Buffer) Release() {
	if b != nil {
		b.Pix = nil
	}
}

// Luma returns the buffer converted to 8-bit grayscale, row-major.
func (b *Buffer) Luma() []uint8 {
	bpp := b.Format.BytesPerPixel()
	out := make([]uint8, b.Width*b.Height)
	for i := range out {
		p := b.Pix[i*bpp : i*bpp+3]
		// ITU-R BT.601 weights, matching image/color.GrayModel.
		y := (19595*uint32(p[0]) + 38470*uint32(p[1]) + 7471*uint32(p[2]) + 1<<15) >> 16
		out[i] = uint8(y)
	}
	return out
}

// Probe reads only the image header and returns its dimensions.
func Probe(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, openError("probe", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrPipelineStep, "decode", "probe", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Decode reads path into a packed buffer of the given format. With resize set
// large images are scaled down by OptimizedSize before rotation.
func Decode(path string, format Format, orientation int, resize bool) (*Buffer, error) {
	if format != FormatRGB && format != FormatRGBA {
		return nil, services.Wrap(services.ErrPipelineStep, "decode", "format", format.String(), nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, openError("decode", path, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, services.Wrap(services.ErrPipelineStep, "decode", "decode", path, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if resize {
		if nw, nh := OptimizedSize(w, h); nw != w || nh != h {
			dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
			draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
			src = dst
		}
	}

	return pack(src, format, orientation), nil
}

func openError(operation, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, "decode", operation, path, err)
	}
	return services.Wrap(services.ErrPipelineStep, "decode", operation, path, err)
}

// pack copies src into a packed buffer, rotating clockwise by orientation.
func pack(src image.Image, format Format, orientation int) *Buffer {
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	dw, dh := RotatedSize(sw, sh, orientation)
	bpp := format.BytesPerPixel()
	buf := &Buffer{Format: format, Width: dw, Height: dh, Pix: make([]byte, dw*dh*bpp)}

	for y := 0; y < sh; y++ {
		for x := 0; x < sw; x++ {
			c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			dx, dy := rotatePoint(x, y, sw, sh, orientation)
			i := (dy*dw + dx) * bpp
			buf.Pix[i] = c.R
			buf.Pix[i+1] = c.G
			buf.Pix[i+2] = c.B
			if bpp == 4 {
				buf.Pix[i+3] = c.A
			}
		}
	}
	return buf
}

func rotatePoint(x, y, w, h, orientation int) (int, int) {
	switch orientation {
	case Rotate90:
		return h - 1 - y, x
	case Rotate180:
		return w - 1 - x, h - 1 - y
	case Rotate270:
		return y, w - 1 - x
	default:
		return x, y
	}
}

// AverageColor returns the mean RGB of the buffer.
func AverageColor(b *Buffer) (uint8, uint8, uint8, error) {
	if b == nil || len(b.Pix) == 0 {
		return 0, 0, 0, fmt.Errorf("average color: empty buffer")
	}
	bpp := b.Format.BytesPerPixel()
	var r, g, bl uint64
	n := uint64(len(b.Pix) / bpp)
	for i := 0; i+2 < len(b.Pix); i += bpp {
		r += uint64(b.Pix[i])
		g += uint64(b.Pix[i+1])
		bl += uint64(b.Pix[i+2])
	}
	return uint8(r / n), uint8(g / n), uint8(bl / n), nil
}
