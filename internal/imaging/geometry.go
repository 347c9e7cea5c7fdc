package imaging

const (
	optimizedWidth  = 1280
	optimizedHeight = 720
)

// OptimizedSize returns the decode size for a w x h image. Images already
// within 1280x720 keep their size; larger ones are scaled along their dominant
// axis, keeping the aspect ratio.
func OptimizedSize(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if w <= optimizedWidth && h <= optimizedHeight {
		return w, h
	}
	if w > h {
		nh := h * optimizedWidth / w
		return optimizedWidth, max(nh, 1)
	}
	nw := w * optimizedHeight / h
	return max(nw, 1), optimizedHeight
}

// ScaleFactor is the ratio between original and buffer sizes along the
// original image's dominant axis. The buffer side compared is the larger one,
// so a rotated buffer maps back onto the same axis.
func ScaleFactor(origW, origH, bufW, bufH int) float64 {
	if origW <= 0 || origH <= 0 || bufW <= 0 || bufH <= 0 {
		return 1
	}
	bufMax := max(bufW, bufH)
	if origW >= origH {
		return float64(origW) / float64(bufMax)
	}
	return float64(origH) / float64(bufMax)
}

// RotatedSize returns the buffer dimensions after applying orientation.
func RotatedSize(w, h, orientation int) (int, int) {
	if orientation == Rotate90 || orientation == Rotate270 {
		return h, w
	}
	return w, h
}
