package imaging

import (
	"fmt"
	"strings"

	"facescan/internal/services"
)

// Format is the packed pixel layout of a Buffer.
type Format int

const (
	FormatRGB Format = iota + 1
	FormatRGBA
)

func (f Format) String() string {
	switch f {
	case FormatRGB:
		return "rgb"
	case FormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// BytesPerPixel returns the packed pixel width.
func (f Format) BytesPerPixel() int {
	if f == FormatRGB {
		return 3
	}
	return 4
}

// FormatForMIME maps a catalog MIME type to the decode pixel format.
func FormatForMIME(mime string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return FormatRGB, nil
	case "image/png", "image/bmp", "image/x-ms-bmp":
		return FormatRGBA, nil
	default:
		return 0, services.Wrap(services.ErrPipelineStep, "decode", "format", fmt.Sprintf("unsupported mime type %q", mime), nil)
	}
}

// MIMEForExtension guesses the catalog MIME type from a file extension.
func MIMEForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "bmp":
		return "image/bmp"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
