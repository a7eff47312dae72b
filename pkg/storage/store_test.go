package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

// fakeObjectAPI records uploads in memory and can fail selected keys.
type fakeObjectAPI struct {
	objects    map[string][]byte
	failPrefix string
	presignErr error
}

func newFakeObjectAPI() *fakeObjectAPI {
	return &fakeObjectAPI{objects: map[string][]byte{}}
}

func (f *fakeObjectAPI) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix) {
		return minio.UploadInfo{}, fmt.Errorf("injected failure for %s", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = data
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjectAPI) PresignedGetObject(_ context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	u := &url.URL{
		Scheme:   "http",
		Host:     "minio.local:9000",
		Path:     "/" + bucket + "/" + key,
		RawQuery: params.Encode() + fmt.Sprintf("&X-Amz-Expires=%d", int(expires.Seconds())),
	}
	return u, nil
}

func testImagePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), 120, 60, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadRenditionsAllSizes(t *testing.T) {
	req := require.New(t)
	api := newFakeObjectAPI()
	store := newWithAPI(api, "smartfarm")

	name, err := store.UploadRenditions(context.Background(), "key.png", testImagePNG(t, 640, 480))
	req.NoError(err)
	req.Equal("key.png", name)

	req.Len(api.objects, 3)
	for _, label := range []string{"small", "medium", "large"} {
		req.Contains(api.objects, label+"/key.png")
		req.NotEmpty(api.objects[label+"/key.png"])
	}
}

func TestUploadRenditionsPartialFailure(t *testing.T) {
	req := require.New(t)
	api := newFakeObjectAPI()
	api.failPrefix = "large/"
	store := newWithAPI(api, "smartfarm")

	_, err := store.UploadRenditions(context.Background(), "key.png", testImagePNG(t, 640, 480))
	req.Error(err)
	req.Contains(err.Error(), "large")

	// the other sizes stay uploaded, no rollback
	req.Contains(api.objects, "small/key.png")
	req.Contains(api.objects, "medium/key.png")
	req.NotContains(api.objects, "large/key.png")
}

func TestUploadRenditionsBadImage(t *testing.T) {
	req := require.New(t)
	store := newWithAPI(newFakeObjectAPI(), "smartfarm")

	_, err := store.UploadRenditions(context.Background(), "key.png", []byte("not an image"))
	req.Error(err)
}

func TestPresignedURL(t *testing.T) {
	req := require.New(t)
	store := newWithAPI(newFakeObjectAPI(), "smartfarm")

	u, err := store.PresignedURL(context.Background(), "123.annotated.png", "medium", 24*time.Hour)
	req.NoError(err)
	req.Contains(u, "/smartfarm/medium/123.annotated.png")
	req.Contains(u, "inline")
	req.Contains(u, url.QueryEscape("image/webp"))
}

func TestPresignedURLEmptyKey(t *testing.T) {
	req := require.New(t)
	store := newWithAPI(newFakeObjectAPI(), "smartfarm")

	_, err := store.PresignedURL(context.Background(), "", "medium", time.Hour)
	req.Error(err)
	req.Contains(err.Error(), "file key is required")
}

func TestGenerateFileKey(t *testing.T) {
	req := require.New(t)
	store := newWithAPI(newFakeObjectAPI(), "smartfarm")

	key := store.GenerateFileKey("my photo.png")
	req.Regexp(regexp.MustCompile(`^\d{13}\.my_photo\.png$`), key)
}

func TestRenditionWidthsCapped(t *testing.T) {
	req := require.New(t)
	api := newFakeObjectAPI()
	store := newWithAPI(api, "smartfarm")

	_, err := store.UploadRenditions(context.Background(), "key.png", testImagePNG(t, 1000, 500))
	req.NoError(err)

	// small is shrunk to 200 wide; large must not be upscaled past the source
	small, err := webpDims(api.objects["small/key.png"])
	req.NoError(err)
	req.Equal(200, small.Dx())
	req.Equal(100, small.Dy())

	large, err := webpDims(api.objects["large/key.png"])
	req.NoError(err)
	req.Equal(1000, large.Dx())
}

func webpDims(data []byte) (image.Rectangle, error) {
	img, err := decodeImage(data)
	if err != nil {
		return image.Rectangle{}, err
	}
	return img.Bounds(), nil
}
