// Package genai calls the Gemini generateContent API for text generation.
// The raw model output is free text that may be wrapped in Markdown code
// fences; callers own the stripping and parsing.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra"
	"server/internal/retry"
)

// Options controls how the Gemini client is configured. Temperature is a
// pointer so zero (fully deterministic sampling) stays distinguishable from
// unset.
type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     *float64
	MaxOutputTokens int
	HTTPClient      *http.Client
	Logger          *infra.Logger
	Retry           retry.Policy
}

// Client provides a lightweight facade over the Gemini text API with a
// bounded retry for transient failures.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *infra.Logger
	retry       retry.Policy
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	CandidateCount  int      `json:"candidateCount,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []geminiSafetySetting   `json:"safetySettings,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// defaultSafetySettings blocks medium-and-above across the standard harm
// categories.
var defaultSafetySettings = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// ErrEmptyResponse is returned when the API answers 2xx but carries no text.
var ErrEmptyResponse = errors.New("gemini returned no text content")

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a request timeout will be created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	temperature := 0.7
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  client,
		logger:      logger,
		retry:       opts.Retry,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateText sends the prompt and returns the raw candidate text. Transient
// failures (network errors, 429, 5xx) are retried once with backoff; other
// API errors fail immediately.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     &c.temperature,
			MaxOutputTokens: c.maxTokens,
			CandidateCount:  1,
		},
		SafetySettings: defaultSafetySettings,
	}

	var text string
	err := c.retry.Do(ctx, func() error {
		out, invokeErr := c.invoke(ctx, payload)
		if invokeErr != nil {
			return invokeErr
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) invoke(ctx context.Context, payload geminiGenerateContentRequest) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	body, err := json.Marshal(payload)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Includes timeouts; worth one more attempt.
		return "", fmt.Errorf("invoke gemini: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := c.statusError(resp)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", apiErr
		}
		return "", retry.Permanent(apiErr)
	}

	var out geminiGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode gemini response: %w", err))
	}

	text := collectText(out)
	if text == "" {
		return "", retry.Permanent(ErrEmptyResponse)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("chars", len(text)).
		Msg("genai: generated text")

	return text, nil
}

func (c *Client) statusError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}

func collectText(out geminiGenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range out.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
