package geminiservice

import (
	"context"
	"fmt"

	"Healthbite/internal/conversation"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GenAIClient generates completions through the Google GenAI SDK.
type GenAIClient struct {
	client *genai.Client
	model  string
	logger *zerolog.Logger
}

// NewGenAIClient creates an SDK-backed provider.
func NewGenAIClient(ctx context.Context, logger *zerolog.Logger, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{client: client, model: model, logger: logger}, nil
}

// Complete implements conversation.CompletionProvider.
func (g *GenAIClient) Complete(ctx context.Context, req conversation.CompletionRequest) (string, error) {
	var cfg *genai.GenerateContentConfig
	if req.SystemInstruction != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		}
	}

	g.logger.Info().Str("role", string(req.Role)).Str("model", g.model).Msg("Calling GenAI GenerateContent")

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGenAIContents(req.Messages), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no content found in GenAI response")
	}
	return text, nil
}

func toGenAIContents(messages []conversation.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Speaker == conversation.SpeakerAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}
