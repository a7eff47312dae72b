// Package server exposes the plant-health HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/smartfarm/plant-health/internal/utils"
	"github.com/smartfarm/plant-health/pkg/types"
)

// maxUploadBytes caps multipart upload memory and request size.
const maxUploadBytes = 50 << 20

// Detector runs the detection pipeline for one image URL.
type Detector interface {
	DetectFromURL(ctx context.Context, imageURL string) (string, types.Analysis, error)
}

// Server holds the handlers for the /api/health endpoint family.
type Server struct {
	detector  Detector
	publicDir string
}

// New creates a Server storing uploads under publicDir.
func New(detector Detector, publicDir string) (*Server, error) {
	if err := utils.EnsureDir(publicDir); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Server{detector: detector, publicDir: publicDir}, nil
}

// Routes returns the request multiplexer for all endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/health/detect", s.handleDetect)
	mux.HandleFunc("POST /api/health/upload", s.handleUpload)
	mux.HandleFunc("GET /api/health/public/{filename}", s.handlePublic)
	mux.HandleFunc("GET /api/health/healthz", s.handleHealthz)
	return mux
}

type detectRequest struct {
	ImageURL string `json:"image_url"`
}

type detectResponse struct {
	PresignedURL string         `json:"presigned_url"`
	AnalysisVN   types.Analysis `json:"analysis_vn"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" {
		respondError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	presigned, analysis, err := s.detector.DetectFromURL(r.Context(), req.ImageURL)
	if err != nil {
		respondError(w, fmt.Sprintf("Detection failed: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, detectResponse{PresignedURL: presigned, AnalysisVN: analysis}, http.StatusOK)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !utils.IsImageFile(header.Filename) {
		respondError(w, "Uploaded file is not an image", http.StatusBadRequest)
		return
	}

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".png"
	}
	filename := strings.ReplaceAll(uuid.NewString(), "-", "") + ext

	dst, err := os.Create(filepath.Join(s.publicDir, filename))
	if err != nil {
		respondError(w, fmt.Sprintf("Upload failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		respondError(w, fmt.Sprintf("Upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"image_url": "/api/health/public/" + filename}, http.StatusOK)
}

func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	// Base() strips any path traversal from the route value
	filename := filepath.Base(r.PathValue("filename"))
	path := filepath.Join(s.publicDir, filename)
	if !utils.FileExists(path) {
		respondError(w, "File not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
