// Package llm connects to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/itsAakanksha/career-counselor-ai/internal/config"
)

// Client is the one completion call the responder makes. Tests substitute
// their own.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ Client = (*openai.Client)(nil)

// NewClient creates a client for the configured endpoint. The per-call
// deadline comes from the caller's context; the HTTP client timeout only
// catches a context without one.
func NewClient(cfg config.LLMConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: 2 * cfg.Timeout}

	return openai.NewClientWithConfig(oc)
}
