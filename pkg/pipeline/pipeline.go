// Package pipeline sequences the detection, annotation and storage steps for
// one plant-health request.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smartfarm/plant-health/pkg/annotator"
	"github.com/smartfarm/plant-health/pkg/client"
	"github.com/smartfarm/plant-health/pkg/detection"
	"github.com/smartfarm/plant-health/pkg/types"
)

const (
	// fetchTimeout bounds the upstream image download.
	fetchTimeout = 20 * time.Second
	// presignTTL is how long the returned retrieval URL stays valid.
	presignTTL = 24 * time.Hour
	// presignSize is the rendition tier the retrieval URL points at.
	presignSize = "medium"
	// modelAttempts bounds retries of the model call on transient failures.
	modelAttempts = 2
	// annotatedName seeds the storage key for the annotated image.
	annotatedName = "annotated.png"
)

// ObjectStore is what the pipeline needs from the rendition store.
type ObjectStore interface {
	UploadRenditions(ctx context.Context, fileName string, data []byte) (string, error)
	PresignedURL(ctx context.Context, fileKey, size string, expires time.Duration) (string, error)
	GenerateFileKey(originalName string) string
}

// Pipeline runs the full detect-annotate-store sequence. Its clients are
// constructed once at startup and shared by all in-flight requests.
type Pipeline struct {
	model      client.VisionModel
	store      ObjectStore
	httpClient *http.Client
	prompt     string
}

// New creates a Pipeline around a vision model and a rendition store.
func New(model client.VisionModel, store ObjectStore) *Pipeline {
	return &Pipeline{
		model:      model,
		store:      store,
		httpClient: &http.Client{Timeout: fetchTimeout},
		prompt:     detection.DefaultPrompt,
	}
}

// DetectFromURL downloads the image and runs detection on it.
func (p *Pipeline) DetectFromURL(ctx context.Context, imageURL string) (string, types.Analysis, error) {
	imageBytes, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	return p.DetectFromBytes(ctx, imageBytes)
}

// DetectFromBytes runs the full pipeline on raw image bytes: call the model,
// parse and validate detections, annotate a rescaled copy, store its
// renditions, and return a presigned URL for the medium rendition together
// with the analysis mapping. Annotation draws from the raw detection records
// rather than the validated subset, since raw records may carry fields the
// typed model discards; validation results are logged.
func (p *Pipeline) DetectFromBytes(ctx context.Context, imageBytes []byte) (string, types.Analysis, error) {
	raw, err := p.generateWithRetry(ctx, imageBytes)
	if err != nil {
		return "", nil, fmt.Errorf("model call failed: %w", err)
	}

	rawDets, analysis, parseErr := detection.ParseDetections(raw)
	if parseErr != nil {
		log.Printf("detection parse fallback: %v", parseErr)
	}

	typed, dropped := detection.Normalize(rawDets)
	for _, d := range dropped {
		log.Printf("dropped malformed %s", d)
	}
	log.Printf("model returned %d detections, %d valid", len(rawDets), len(typed))

	annotated, err := annotator.Annotate(imageBytes, rawDets, annotator.DefaultTargetWidth)
	if err != nil {
		return "", nil, fmt.Errorf("annotation failed: %w", err)
	}

	fileKey := p.store.GenerateFileKey(annotatedName)
	if _, err := p.store.UploadRenditions(ctx, fileKey, annotated); err != nil {
		return "", nil, fmt.Errorf("failed to upload annotated image: %w", err)
	}

	presigned, err := p.store.PresignedURL(ctx, fileKey, presignSize, presignTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to presign annotated image: %w", err)
	}
	return presigned, analysis, nil
}

// generateWithRetry calls the model with a bounded retry for transient
// failures. Context cancellation stops further attempts.
func (p *Pipeline) generateWithRetry(ctx context.Context, imageBytes []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= modelAttempts; attempt++ {
		raw, err := p.model.Generate(ctx, imageBytes, p.prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < modelAttempts {
			log.Printf("model call attempt %d failed, retrying: %v", attempt, err)
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

// fetchImage downloads an image over http(s) with a bounded wait, failing on
// non-2xx responses and non-image content types.
func (p *Pipeline) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %v", err)
	}
	return data, nil
}
