package types

import (
	"math"
	"strconv"
)

// RawDetection is one detection record exactly as the model returned it.
// Keys and value types are untrusted; use BoundingBox to read the box field.
type RawDetection map[string]any

// Analysis is the free-form diagnosis mapping returned by the model under
// "analysis_vn". The service passes it through without validating its shape.
type Analysis map[string]any

// Detection is a validated detection. Box coordinates are normalized to the
// fixed 0..1000 space in [ymin, xmin, ymax, xmax] order. Confidence, when
// present, is always in [0,1].
type Detection struct {
	Label      string     `json:"label"`
	Confidence *float64   `json:"confidence,omitempty"`
	Box2D      [4]float64 `json:"box_2d"`
}

// BoundingBox resolves the detection's box under any of its accepted key
// aliases and coerces it to numbers. ok is false when the box is missing,
// shorter than 4 entries, or contains a non-numeric value.
func (d RawDetection) BoundingBox() (box []float64, ok bool) {
	var raw []any
	for _, key := range []string{"box_2d", "bbox", "box"} {
		if v, found := d[key]; found {
			if seq, isSeq := v.([]any); isSeq && len(seq) > 0 {
				raw = seq
				break
			}
		}
	}
	if len(raw) < 4 {
		return nil, false
	}

	box = make([]float64, 0, len(raw))
	for _, v := range raw {
		f, numeric := ToNumber(v)
		if !numeric {
			return nil, false
		}
		box = append(box, f)
	}
	return box, true
}

// ToNumber coerces a decoded JSON value to a finite float64.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
