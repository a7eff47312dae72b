package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smartfarm/plant-health/pkg/types"
)

type stubDetector struct {
	url      string
	analysis types.Analysis
	err      error
	gotURL   string
}

func (d *stubDetector) DetectFromURL(_ context.Context, imageURL string) (string, types.Analysis, error) {
	d.gotURL = imageURL
	return d.url, d.analysis, d.err
}

func newTestServer(t *testing.T, detector Detector) *Server {
	t.Helper()
	s, err := New(detector, t.TempDir())
	require.NoError(t, err)
	return s
}

func TestDetectEndpoint(t *testing.T) {
	req := require.New(t)
	detector := &stubDetector{
		url:      "http://minio.local/smartfarm/medium/123.annotated.png",
		analysis: types.Analysis{"prediction": "healthy"},
	}
	srv := newTestServer(t, detector)

	body := strings.NewReader(`{"image_url": "http://example.com/leaf.jpg"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/health/detect", body)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Equal("http://example.com/leaf.jpg", detector.gotURL)

	var resp detectResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Equal(detector.url, resp.PresignedURL)
	req.Equal("healthy", resp.AnalysisVN["prediction"])
}

func TestDetectEndpointMissingURL(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{})

	for _, body := range []string{`{}`, ``, `{"image_url": ""}`, `garbage`} {
		r := httptest.NewRequest(http.MethodPost, "/api/health/detect", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.Routes().ServeHTTP(w, r)

		req.Equal(http.StatusBadRequest, w.Code, "body %q", body)
		req.Contains(w.Body.String(), "image_url is required")
	}
}

func TestDetectEndpointPipelineFailure(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{err: fmt.Errorf("model call failed: boom")})

	r := httptest.NewRequest(http.MethodPost, "/api/health/detect",
		strings.NewReader(`{"image_url": "http://example.com/leaf.jpg"}`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)

	req.Equal(http.StatusInternalServerError, w.Code)
	req.Contains(w.Body.String(), "Detection failed")
	req.Contains(w.Body.String(), "model call failed")
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadAndServe(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{})
	mux := srv.Routes()

	body, contentType := multipartBody(t, "file", "my leaf.png", []byte("fake png bytes"))
	r := httptest.NewRequest(http.MethodPost, "/api/health/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)

	var resp map[string]string
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.True(strings.HasPrefix(resp["image_url"], "/api/health/public/"))
	req.True(strings.HasSuffix(resp["image_url"], ".png"))

	// the stored file is served back
	r = httptest.NewRequest(http.MethodGet, resp["image_url"], nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Equal("fake png bytes", w.Body.String())
}

func TestUploadRejectsNonImage(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{})

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	r := httptest.NewRequest(http.MethodPost, "/api/health/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)

	req.Equal(http.StatusBadRequest, w.Code)
}

func TestUploadMissingFile(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{})

	body, contentType := multipartBody(t, "other", "leaf.png", []byte("x"))
	r := httptest.NewRequest(http.MethodPost, "/api/health/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)

	req.Equal(http.StatusBadRequest, w.Code)
	req.Contains(w.Body.String(), "No file uploaded")
}

func TestPublicNotFound(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{})

	r := httptest.NewRequest(http.MethodGet, "/api/health/public/nope.png", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)

	req.Equal(http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, &stubDetector{})

	r := httptest.NewRequest(http.MethodGet, "/api/health/healthz", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "ok")
}
