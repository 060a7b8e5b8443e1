package geminiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"Healthbite/internal/conversation"
	"github.com/rs/zerolog"
)

// --- Gemini API Configuration ---
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"

	maxRetries     = 3
	initialBackoff = 1 * time.Second
	requestTimeout = 30 * time.Second
	textMimeType   = "text/plain"
	geminiUserRole = "user"
	geminiModel    = "model"
)

// --- Structs for Gemini API Request/Response ---

type GeminiPayload struct {
	Contents          []GeminiContent   `json:"contents"`
	SystemInstruction *GeminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text,omitempty"`
}

type GenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
	retries    int
	logger     *zerolog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithBackoff sets the initial retry backoff; it doubles on every attempt.
func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.backoff = d }
}

// NewClient builds a REST client. apiKey is required.
func NewClient(logger *zerolog.Logger, apiKey, model string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		backoff:    initialBackoff,
		retries:    maxRetries,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete implements conversation.CompletionProvider.
func (c *Client) Complete(ctx context.Context, req conversation.CompletionRequest) (string, error) {
	payload := buildPayload(req)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	var lastErr error

	// Exponential backoff retry loop
	for i := 0; i < c.retries; i++ {
		if i > 0 {
			wait := c.backoff * time.Duration(math.Pow(2, float64(i-1)))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini call abandoned after %d attempts: %w", i, ctx.Err())
			case <-time.After(wait):
			}
		}

		c.logger.Info().Str("role", string(req.Role)).Msgf("Attempt %d: Calling Gemini API...", i+1)

		text, retry, err := c.do(ctx, endpoint, payloadBytes)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Msgf("Attempt %d failed", i+1)
		if !retry || ctx.Err() != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("failed to call Gemini API after %d attempts: %w", c.retries, lastErr)
}

// do performs one HTTP round trip. retry reports whether the failure is transient.
func (c *Client) do(ctx context.Context, endpoint string, body []byte) (text string, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("API returned non-200 status: %s, Body: %s", resp.Status, strings.TrimSpace(string(errBody)))
		return "", resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, err
	}

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	return responseText(geminiResp)
}

func responseText(r GeminiResponse) (string, bool, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", false, fmt.Errorf("prompt blocked by Gemini: %s", r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("no content found in Gemini response")
	}

	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), false, nil
}

// buildPayload maps a role's context onto Gemini contents. Assistant turns use
// Gemini's "model" role.
func buildPayload(req conversation.CompletionRequest) GeminiPayload {
	payload := GeminiPayload{
		Contents:         make([]GeminiContent, 0, len(req.Messages)),
		GenerationConfig: &GenerationConfig{ResponseMimeType: textMimeType},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: req.SystemInstruction}}}
	}
	for _, m := range req.Messages {
		role := geminiUserRole
		if m.Speaker == conversation.SpeakerAssistant {
			role = geminiModel
		}
		payload.Contents = append(payload.Contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: m.Content}},
		})
	}
	return payload
}
