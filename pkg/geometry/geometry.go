// Package geometry converts normalized model coordinates to pixel space.
package geometry

// CoordSpace is the fixed normalized coordinate range the model emits boxes
// in, independent of actual image dimensions.
const CoordSpace = 1000.0

// ToPixels converts a normalized [ymin, xmin, ymax, xmax] box on the 0..1000
// scale into pixel coordinates (x1, y1, x2, y2) for a W x H image. Only the
// first four values are used. Coordinates are clamped to the normalized range
// before scaling, then independently clamped to image bounds and ordered, so
// the result always satisfies 0 <= x1 <= x2 < W and 0 <= y1 <= y2 < H even
// for swapped or out-of-range input. Degenerate (zero-area) boxes are a
// valid result; callers filter them.
func ToPixels(box []float64, w, h int) (x1, y1, x2, y2 int) {
	ymin := clamp(box[0], 0, CoordSpace)
	xmin := clamp(box[1], 0, CoordSpace)
	ymax := clamp(box[2], 0, CoordSpace)
	xmax := clamp(box[3], 0, CoordSpace)

	y1 = int(ymin / CoordSpace * float64(h))
	x1 = int(xmin / CoordSpace * float64(w))
	y2 = int(ymax / CoordSpace * float64(h))
	x2 = int(xmax / CoordSpace * float64(w))

	x1, x2 = clampInt(min(x1, x2), 0, w-1), clampInt(max(x1, x2), 0, w-1)
	y1, y2 = clampInt(min(y1, y2), 0, h-1), clampInt(max(y1, y2), 0, h-1)
	return x1, y1, x2, y2
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
