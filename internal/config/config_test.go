package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "ecosnap.db", cfg.DBPath)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.False(t, cfg.OllamaEnabled)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 150*time.Millisecond, cfg.MinInterval)
	assert.Equal(t, 100, cfg.Quota)
	assert.Equal(t, 60*time.Second, cfg.QuotaWindow)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "key")
	t.Setenv("OLLAMA_BASE_URL", "http://fallback:11434")
	t.Setenv("RATE_MAX_CONCURRENT", "5")
	t.Setenv("RATE_MIN_INTERVAL", "250ms")
	t.Setenv("ANALYSIS_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.OllamaEnabled)
	assert.Equal(t, "http://fallback:11434", cfg.OllamaBaseURL)
	assert.Equal(t, 5, cfg.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.MinInterval)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "key")
	t.Setenv("RATE_QUOTA", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_QUOTA")
}
