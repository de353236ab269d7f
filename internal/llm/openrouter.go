package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ecosnap/ecosnap/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel   = "google/gemini-2.0-flash-exp:free"

	openRouterTimeout     = 120 * time.Second
	healthTimeout         = 10 * time.Second
	maxTokens             = 4000
	temperature           = 0.1
	rateLimitRetries      = 5
	rateLimitInitialDelay = 2 * time.Second
)

const sustainabilityPrompt = `Identify the item in this image and give me a comprehensive, full-page explanation about how it can be managed in sustainable ways.

Your response must include three separate sections:

1. *Recycle* – Explain in detail how the item can be recycled, including the materials it is made of, preparation steps before recycling, and the recycling process step-by-step. Mention if specialized recycling centers are needed.

2. *Reuse* – Provide multiple creative and practical ways the item can be reused at home, school, or workplace. Explain each idea in full detail with steps on how to implement them.

3. *Donate* – Suggest how and where the item can be donated, what organizations might accept it, and why donation is valuable. Provide practical guidance for preparing the item before donating.

Also estimate:
- Carbon footprint if thrown away (in kg CO2)
- Environmental impact
- Item category (plastic, metal, paper, glass, electronic, textile, organic, other)

If you can, respond with a single JSON object with fields itemName, description,
itemCategory, confidence, recommendations (recycle/reuse/donate with possible,
instructions, ideas, organizations) and environmental (carbonFootprint,
carbonSaved, wasteReduction, energySaved). Otherwise use clear numbered sections.

Image filename: %s`

// chat-completions wire types (OpenAI-compatible, as served by OpenRouter)
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenRouterConfig configures the primary vision client.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string // defaults to DefaultOpenRouterBaseURL
	Model   string // defaults to DefaultOpenRouterModel
}

// OpenRouterClient is the primary vision provider. Every outbound call goes
// through the injected rate governor; HTTP 429 responses are retried with
// exponential backoff up to a fixed budget.
type OpenRouterClient struct {
	httpClient *resty.Client
	governor   *ratelimit.Governor
	model      string
	retryDelay time.Duration
}

// NewOpenRouterClient creates the primary client. It fails fast when no API
// key is configured.
func NewOpenRouterClient(cfg OpenRouterConfig, governor *ratelimit.Governor) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter: %w", ErrNoAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenRouterModel
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(openRouterTimeout)

	return &OpenRouterClient{
		httpClient: httpClient,
		governor:   governor,
		model:      cfg.Model,
		retryDelay: rateLimitInitialDelay,
	}, nil
}

// Analyze sends the image through the chat-completions endpoint and returns
// the raw response text. On HTTP 429 it backs off exponentially and retries;
// when the retry budget runs out it reports RateLimited. Any other error is
// a Failure and is not retried here.
func (c *OpenRouterClient) Analyze(ctx context.Context, imagePath, originalName string) Outcome {
	dataURI, err := readImageDataURI(imagePath)
	if err != nil {
		return Failure(err)
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: fmt.Sprintf(sustainabilityPrompt, originalName)},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
				},
			},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	delay := c.retryDelay
	for attempt := 1; attempt <= rateLimitRetries; attempt++ {
		resp, err := c.send(ctx, body)
		if err != nil {
			return Failure(err)
		}

		if resp.StatusCode() == http.StatusTooManyRequests {
			log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("openrouter rate limit hit, backing off")
			if err := sleep(ctx, delay); err != nil {
				return Failure(err)
			}
			delay *= 2
			continue
		}

		if resp.IsError() {
			return Failure(fmt.Errorf("openrouter request failed (status: %d): %s", resp.StatusCode(), resp.String()))
		}

		result := resp.Result().(*chatResponse)
		var content string
		if len(result.Choices) > 0 {
			content = result.Choices[0].Message.Content
		}
		return Success(content)
	}

	log.Error().Int("retries", rateLimitRetries).Msg("openrouter retry budget exhausted")
	return RateLimited()
}

// send issues one governed HTTP call. The governor permit is held for the
// duration of the call and released in all cases.
func (c *OpenRouterClient) send(ctx context.Context, body chatRequest) (*resty.Response, error) {
	if err := c.governor.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.governor.Release()

	return c.httpClient.NewRequest().
		SetContext(ctx).
		SetBody(body).
		SetResult(&chatResponse{}).
		Post("/chat/completions")
}

// CheckHealth probes the API with a minimal text-only completion to verify
// the key and endpoint are usable.
func (c *OpenRouterClient) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: "Hello, this is a health check."},
		},
	}

	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return fmt.Errorf("openrouter health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("openrouter health check failed (status: %d)", resp.StatusCode())
	}
	return nil
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
