package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/smartfarm/plant-health/internal/config"
	"github.com/smartfarm/plant-health/internal/server"
	"github.com/smartfarm/plant-health/pkg/client"
	"github.com/smartfarm/plant-health/pkg/gemini"
	"github.com/smartfarm/plant-health/pkg/ollama"
	"github.com/smartfarm/plant-health/pkg/pipeline"
	"github.com/smartfarm/plant-health/pkg/storage"
)

func main() {
	// .env is optional; the environment wins either way
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := storage.New(storage.Config{
		Endpoint:  cfg.Minio.Addr(),
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		UseSSL:    cfg.Minio.UseSSL,
		Bucket:    cfg.Minio.Bucket,
	})
	if err != nil {
		log.Fatalf("failed to connect to MinIO: %v", err)
	}

	var model client.VisionModel
	switch cfg.Backend {
	case "gemini":
		model, err = gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Fatalf("failed to create Gemini client: %v", err)
		}
	case "ollama":
		model, err = ollama.NewClient(cfg.Ollama.URL, cfg.Ollama.Model)
		if err != nil {
			log.Fatalf("failed to create Ollama client: %v", err)
		}
	default:
		log.Fatalf("unknown backend: %s (use 'gemini' or 'ollama')", cfg.Backend)
	}

	pipe := pipeline.New(model, store)

	srv, err := server.New(pipe, cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// detection requests block on the model call, keep the write ceiling generous
		WriteTimeout: 10 * time.Minute,
	}

	log.Printf("plant-health listening on :%d (backend=%s)", cfg.Port, cfg.Backend)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
