package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration, loaded from the environment.
type Config struct {
	Port      int    `envconfig:"PORT" default:"8080"`
	UploadDir string `envconfig:"UPLOAD_DIR" default:"./uploads"`

	// Backend selects the vision model implementation: gemini or ollama
	Backend string `envconfig:"MODEL_BACKEND" default:"gemini"`

	Gemini GeminiConfig
	Ollama OllamaConfig
	Minio  MinioConfig
}

// GeminiConfig holds settings for the Gemini backend.
type GeminiConfig struct {
	APIKey string `envconfig:"GEMINI_API_KEY"`
	Model  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
}

// OllamaConfig holds settings for the Ollama backend.
type OllamaConfig struct {
	URL   string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	Model string `envconfig:"OLLAMA_MODEL" default:"qwen2.5vl"`
}

// MinioConfig holds the object store connection settings.
type MinioConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost"`
	Port      int    `envconfig:"MINIO_PORT" default:"9000"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"smartfarm"`
}

// Addr returns the endpoint in the host:port form the MinIO client expects.
func (m MinioConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Endpoint, m.Port)
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	switch c.Backend {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY must be set when MODEL_BACKEND is gemini")
		}
	case "ollama":
		if c.Ollama.URL == "" {
			return fmt.Errorf("OLLAMA_URL must be set when MODEL_BACKEND is ollama")
		}
	default:
		return fmt.Errorf("MODEL_BACKEND must be gemini or ollama, got %q", c.Backend)
	}

	if c.Minio.Bucket == "" {
		return fmt.Errorf("MINIO_BUCKET cannot be empty")
	}
	return nil
}
