package detection

import (
	"fmt"

	"github.com/smartfarm/plant-health/pkg/types"
)

// Normalize converts raw detection records into validated typed detections.
// A record that fails conversion in any field is dropped as a whole; the
// batch never fails. Order is preserved and no deduplication happens.
// Dropped returns the index and reason for each discarded record so the
// caller can log them.
func Normalize(raw []types.RawDetection) (valid []types.Detection, dropped []DropReason) {
	valid = make([]types.Detection, 0, len(raw))
	for i, d := range raw {
		det, err := normalizeOne(d)
		if err != nil {
			dropped = append(dropped, DropReason{Index: i, Err: err})
			continue
		}
		valid = append(valid, det)
	}
	return valid, dropped
}

// DropReason records why one raw detection was discarded.
type DropReason struct {
	Index int
	Err   error
}

func (r DropReason) String() string {
	return fmt.Sprintf("detection %d: %v", r.Index, r.Err)
}

func normalizeOne(d types.RawDetection) (types.Detection, error) {
	det := types.Detection{Label: "unknown"}
	if label, ok := d["label"].(string); ok && label != "" {
		det.Label = label
	}

	if raw, present := d["confidence"]; present && raw != nil {
		conf, ok := types.ToNumber(raw)
		if !ok {
			return types.Detection{}, fmt.Errorf("confidence %v is not numeric", raw)
		}
		conf = normalizeConfidence(conf)
		det.Confidence = &conf
	}

	box, ok := d.BoundingBox()
	if !ok {
		return types.Detection{}, fmt.Errorf("missing or unparseable box")
	}
	copy(det.Box2D[:], box[:4])

	return det, nil
}

// normalizeConfidence maps model confidence onto [0,1]. Values above 1 are
// assumed to be percentages; the final value is clamped so the Detection
// invariant holds even for confidences above 100.
func normalizeConfidence(conf float64) float64 {
	if conf > 1 {
		conf /= 100.0
	}
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
