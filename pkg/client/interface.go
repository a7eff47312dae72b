package client

import "context"

// VisionModel is the single capability the pipeline needs from a multimodal
// model: produce diagnostic text (ideally JSON) for an image plus prompt.
type VisionModel interface {
	Generate(ctx context.Context, image []byte, prompt string) (string, error)
}
