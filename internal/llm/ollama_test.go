package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaAnalyzeSuccess(t *testing.T) {
	var gotReq ollamaGenerateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"This is a glass jar. Recycling: yes."}`))
	}))
	defer ts.Close()

	client := NewOllamaClient(ts.URL, "minicpm-v")
	outcome := client.Analyze(context.Background(), writeTestImage(t, "jar.jpg"), "jar.jpg")

	require.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "This is a glass jar. Recycling: yes.", outcome.Raw)

	assert.Equal(t, "minicpm-v", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Contains(t, gotReq.Prompt, "jar.jpg")
	assert.Equal(t, 0.1, gotReq.Options.Temperature)

	// Ollama takes raw base64, not a data URI
	require.Len(t, gotReq.Images, 1)
	decoded, err := base64.StdEncoding.DecodeString(gotReq.Images[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("not really a jpeg"), decoded)
}

func TestOllamaAnalyzeSingleAttempt(t *testing.T) {
	var attempts int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewOllamaClient(ts.URL, "")
	outcome := client.Analyze(context.Background(), writeTestImage(t, "item.jpg"), "item.jpg")

	assert.Equal(t, OutcomeFailure, outcome.Kind)
	assert.Equal(t, 1, attempts)
}

func TestOllamaAnalyzeThrottled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewOllamaClient(ts.URL, "")
	outcome := client.Analyze(context.Background(), writeTestImage(t, "item.jpg"), "item.jpg")
	assert.Equal(t, OutcomeRateLimited, outcome.Kind)
}

func TestOllamaAnalyzeMissingImage(t *testing.T) {
	client := NewOllamaClient("http://localhost:1", "")
	outcome := client.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), "missing.jpg")
	assert.Equal(t, OutcomeFailure, outcome.Kind)
}

func TestOllamaCheckHealth(t *testing.T) {
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"models":[]}`))
	}))
	defer ts.Close()

	client := NewOllamaClient(ts.URL, "")
	require.NoError(t, client.CheckHealth(context.Background()))
	assert.Equal(t, "/api/tags", path)

	ts.Close()
	assert.Error(t, client.CheckHealth(context.Background()))
}

func TestOllamaDefaults(t *testing.T) {
	client := NewOllamaClient("", "")
	assert.Equal(t, DefaultOllamaModel, client.model)
}
