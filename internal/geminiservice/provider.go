/*
Package geminiservice implements the completion providers the conversation
driver talks to: a plain REST client for the Gemini generateContent endpoint
and a client built on the Google GenAI SDK.
*/
package geminiservice

import (
	"context"
	"fmt"

	"Healthbite/internal/conversation"
	"github.com/rs/zerolog"
)

const (
	ProviderREST  = "rest"
	ProviderGenAI = "genai"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// NewProvider returns the configured completion provider.
func NewProvider(ctx context.Context, logger *zerolog.Logger, cfg Config) (conversation.CompletionProvider, error) {
	switch cfg.Provider {
	case "", ProviderREST:
		var opts []ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		client, err := NewClient(logger, cfg.APIKey, cfg.Model, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderGenAI:
		client, err := NewGenAIClient(ctx, logger, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q (want %q or %q)", cfg.Provider, ProviderREST, ProviderGenAI)
}
