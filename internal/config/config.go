// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const EnvFileName = ".env"

// Config holds everything the service needs at startup. Only the OpenRouter
// API key is required; everything else has a sensible default.
type Config struct {
	// HTTP
	ListenAddr string

	// Storage
	DBPath    string
	UploadDir string

	// Primary provider (OpenRouter)
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string

	// Fallback provider (Ollama). Enabled when OllamaEnabled is true.
	OllamaEnabled bool
	OllamaBaseURL string
	OllamaModel   string

	// Rate governor for the primary provider
	MaxConcurrent int
	MinInterval   time.Duration
	Quota         int
	QuotaWindow   time.Duration

	// Worker pool
	Workers   int
	QueueSize int
}

// LoadEnvFile loads environment variables from a .env file in the working
// directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	_ = godotenv.Load(EnvFileName)
}

// Load builds the configuration from environment variables. It returns an
// error when a required variable is missing or a numeric one is malformed.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "ecosnap.db"),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: os.Getenv("OPENROUTER_BASE_URL"),
		OpenRouterModel:   os.Getenv("OPENROUTER_MODEL"),
		OllamaBaseURL:     os.Getenv("OLLAMA_BASE_URL"),
		OllamaModel:       os.Getenv("OLLAMA_MODEL"),
	}

	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable is required")
	}

	// The fallback is optional capability: it exists only when explicitly
	// pointed at a server.
	cfg.OllamaEnabled = cfg.OllamaBaseURL != ""

	var err error
	if cfg.MaxConcurrent, err = getEnvInt("RATE_MAX_CONCURRENT", 3); err != nil {
		return nil, err
	}
	if cfg.MinInterval, err = getEnvDuration("RATE_MIN_INTERVAL", 150*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Quota, err = getEnvInt("RATE_QUOTA", 100); err != nil {
		return nil, err
	}
	if cfg.QuotaWindow, err = getEnvDuration("RATE_QUOTA_WINDOW", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("ANALYSIS_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getEnvInt("ANALYSIS_QUEUE_SIZE", 64); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}
