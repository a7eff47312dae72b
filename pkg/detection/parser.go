// Package detection turns raw model output into validated detections.
package detection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/smartfarm/plant-health/pkg/types"
)

// ParseDetections forgivingly parses raw model text into a detections list
// plus the analysis mapping. A JSON object yields its "detections" and
// "analysis_vn" members (each defaulting to empty); a JSON array is the
// detections list itself. Anything else yields explicit empty results and a
// non-nil error describing why, so callers can log the drop without changing
// control flow. The returned slices/maps are never nil.
func ParseDetections(text string) ([]types.RawDetection, types.Analysis, error) {
	cleaned := sanitizeModelJSON(text)

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return []types.RawDetection{}, types.Analysis{}, fmt.Errorf("model response is not valid JSON: %v", err)
	}

	switch v := parsed.(type) {
	case map[string]any:
		return rawDetections(v["detections"]), analysisMap(v["analysis_vn"]), nil
	case []any:
		return rawList(v), types.Analysis{}, nil
	default:
		return []types.RawDetection{}, types.Analysis{}, fmt.Errorf("model response is JSON but neither object nor array (%T)", parsed)
	}
}

func rawDetections(v any) []types.RawDetection {
	seq, ok := v.([]any)
	if !ok {
		return []types.RawDetection{}
	}
	return rawList(seq)
}

func rawList(seq []any) []types.RawDetection {
	out := make([]types.RawDetection, 0, len(seq))
	for _, item := range seq {
		if m, ok := item.(map[string]any); ok {
			out = append(out, types.RawDetection(m))
		}
	}
	return out
}

func analysisMap(v any) types.Analysis {
	if m, ok := v.(map[string]any); ok {
		return types.Analysis(m)
	}
	return types.Analysis{}
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from
// the model response, then slices out the outermost JSON value.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments
	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")

	// Remove // line/inline comments
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...} or [...], whichever opens first
	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(raw, "]"); end > arrStart {
			raw = raw[arrStart : end+1]
		}
	} else if objStart >= 0 {
		if end := strings.LastIndex(raw, "}"); end > objStart {
			raw = raw[objStart : end+1]
		}
	}

	return strings.TrimSpace(raw)
}
