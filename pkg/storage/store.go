// Package storage persists image renditions in a MinIO bucket and issues
// presigned retrieval URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// renditionContentType is the MIME type all stored renditions are encoded as.
const renditionContentType = "image/webp"

// renditionQuality is the lossy encode quality for stored renditions.
const renditionQuality = 80

// Rendition is one named size tier. Width caps the rendition width; height
// follows the aspect ratio and is effectively unbounded.
type Rendition struct {
	Label string
	Width int
}

// Renditions are the size tiers produced for every stored image.
var Renditions = []Rendition{
	{Label: "small", Width: 200},
	{Label: "medium", Width: 800},
	{Label: "large", Width: 1600},
}

// objectAPI is the slice of the MinIO client the store uses. *minio.Client
// satisfies it.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Store uploads size-variant renditions and issues presigned URLs. It is
// safe for concurrent use by multiple in-flight requests.
type Store struct {
	client objectAPI
	bucket string
}

// New connects a Store to MinIO.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	log.Printf("connected to MinIO at %s, SSL: %v", cfg.Endpoint, cfg.UseSSL)
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// newWithAPI wires an explicit object API, used by tests.
func newWithAPI(api objectAPI, bucket string) *Store {
	return &Store{client: api, bucket: bucket}
}

// UploadRenditions produces the aspect-preserving renditions of the image and
// uploads each under "{size}/{fileName}". A failed size is recorded and does
// not abort the remaining sizes; after all attempts, any failures are
// reported as one aggregate error naming the failed sizes. Successfully
// uploaded sizes stay in the bucket either way. On full success the file
// name is returned as the canonical identifier.
func (s *Store) UploadRenditions(ctx context.Context, fileName string, data []byte) (string, error) {
	original, err := decodeImage(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode image for renditions: %w", err)
	}

	var failed []string
	for _, r := range Renditions {
		encoded, err := encodeRendition(original, r.Width)
		if err != nil {
			log.Printf("error encoding %s rendition of %s: %v", r.Label, fileName, err)
			failed = append(failed, fmt.Sprintf("%s: %v", r.Label, err))
			continue
		}

		key := r.Label + "/" + fileName
		_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(encoded), int64(len(encoded)),
			minio.PutObjectOptions{ContentType: renditionContentType})
		if err != nil {
			log.Printf("error uploading %s rendition of %s: %v", r.Label, fileName, err)
			failed = append(failed, fmt.Sprintf("%s: %v", r.Label, err))
		}
	}

	if len(failed) > 0 {
		return "", fmt.Errorf("some rendition uploads failed: %s", strings.Join(failed, "; "))
	}
	return fileName, nil
}

// PresignedURL returns a time-limited retrieval URL for the given rendition
// of a stored file. The URL suggests inline display with the rendition
// content type. The file key must not be empty.
func (s *Store) PresignedURL(ctx context.Context, fileKey, size string, expires time.Duration) (string, error) {
	if fileKey == "" {
		return "", fmt.Errorf("file key is required")
	}

	key := size + "/" + fileKey
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", key))
	params.Set("response-content-type", renditionContentType)

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// GenerateFileKey builds the storage key for an uploaded file:
// "{millisecond timestamp}.{original name with spaces replaced}". Uniqueness
// is time-based only; keys are scoped to a single upload event.
func (s *Store) GenerateFileKey(originalName string) string {
	safe := strings.ReplaceAll(originalName, " ", "_")
	return fmt.Sprintf("%d.%s", time.Now().UnixMilli(), safe)
}

// encodeRendition shrinks the image so its width does not exceed width
// (never enlarging) and encodes it as lossy WebP.
func encodeRendition(img image.Image, width int) ([]byte, error) {
	resized := imaging.Fit(img, width, width*10000, imaging.Lanczos)
	var buf bytes.Buffer
	if err := webp.Encode(&buf, resized, &webp.Options{Quality: renditionQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("unknown or unsupported image format")
}
