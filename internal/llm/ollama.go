package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "minicpm-v"

	ollamaTimeout       = 120 * time.Second
	ollamaHealthTimeout = 5 * time.Second
)

const ollamaPrompt = `Analyze this image for sustainability purposes. Identify the main item(s) in the image and provide detailed recommendations for:

1. RECYCLING: Can this item be recycled? Where and how?
2. REUSING: Creative ways to reuse this item instead of throwing it away
3. DONATING: Is this item suitable for donation? Where?

Also estimate:
- Carbon footprint if thrown away (in kg CO2)
- Environmental impact
- Item category (plastic, metal, paper, glass, electronic, textile, organic, other)

Please respond in a structured format with clear sections for each recommendation type.

Image filename: %s`

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// OllamaClient is the fallback vision provider, a locally reachable Ollama
// server. It makes a single attempt per call: no governor and no backoff,
// since local contention is expected to be low.
type OllamaClient struct {
	httpClient *resty.Client
	model      string
}

// NewOllamaClient creates a fallback client. Empty arguments fall back to
// the local defaults.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(ollamaTimeout)

	return &OllamaClient{httpClient: httpClient, model: model}
}

// Analyze sends the image to the local generate endpoint. Same outcome
// contract as the primary client; a 429 still maps to RateLimited even
// though Ollama rarely throttles.
func (c *OllamaClient) Analyze(ctx context.Context, imagePath, originalName string) Outcome {
	b64, err := readImageBase64(imagePath)
	if err != nil {
		return Failure(err)
	}

	body := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: fmt.Sprintf(ollamaPrompt, originalName),
		Images: []string{b64},
		Stream: false,
		Options: ollamaOptions{
			Temperature: 0.1,
			TopP:        0.9,
			TopK:        40,
		},
	}

	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetBody(body).
		SetResult(&ollamaGenerateResponse{}).
		Post("/api/generate")
	if err != nil {
		return Failure(fmt.Errorf("ollama request failed: %w", err))
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return RateLimited()
	}
	if resp.IsError() {
		return Failure(fmt.Errorf("ollama request failed (status: %d): %s", resp.StatusCode(), resp.String()))
	}

	return Success(resp.Result().(*ollamaGenerateResponse).Response)
}

// CheckHealth verifies the Ollama server is reachable.
func (c *OllamaClient) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ollamaHealthTimeout)
	defer cancel()

	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		Get("/api/tags")
	if err != nil {
		return fmt.Errorf("ollama health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ollama health check failed (status: %d)", resp.StatusCode())
	}
	return nil
}
