// Package responder turns a user message and its recent history into the
// career counselor's reply. It never fails: when the completion endpoint is
// unreachable, slow or returns nothing usable, a fixed fallback reply is
// produced instead so the turn can still complete.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/llm"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

const defaultSystemPrompt = `You are an experienced career counselor AI. Your role is to provide helpful, professional career advice and guidance. You should:

1. Be empathetic and supportive
2. Ask clarifying questions when needed
3. Provide actionable advice
4. Help with career planning, job search, skill development, and professional growth
5. Be encouraging and positive
6. Keep responses focused on career-related topics
7. Use your knowledge to suggest relevant resources, courses, or next steps

Always maintain a professional, helpful tone and focus on empowering the user to make informed career decisions.`

const (
	// FallbackContent is the reply stored when the upstream model is unavailable.
	FallbackContent = "I'm sorry, I'm having trouble connecting right now. As your career counselor, I'd be happy to help you once I'm back online. Please try again in a moment."
	FallbackModel   = "fallback"

	finishReasonError   = "error"
	finishReasonUnknown = "unknown"

	// MaxHistory is the most prior entries sent as context.
	MaxHistory = 10
)

// Fallback is the reply used whenever the completion call fails.
func Fallback() chat.Reply {
	return chat.Reply{
		Content: FallbackContent,
		Metadata: chat.Metadata{
			Model:        FallbackModel,
			TokenCount:   0,
			FinishReason: finishReasonError,
		},
	}
}

// Responder implements chat.Responder on top of a chat completion endpoint.
type Responder struct {
	client       llm.Client
	model        string
	maxTokens    int
	temperature  float32
	timeout      time.Duration
	systemPrompt string
}

var _ chat.Responder = (*Responder)(nil)

// New builds a Responder. Everything it needs is taken from cfg here, never
// looked up later.
func New(client llm.Client, cfg config.LLMConfig) *Responder {
	r := &Responder{
		client:       client,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		timeout:      cfg.Timeout,
		systemPrompt: defaultSystemPrompt,
	}
	if cfg.SystemPrompt != "" {
		r.systemPrompt = cfg.SystemPrompt
	}
	return r
}

// Respond asks the model for the counselor's reply to message.
func (r *Responder) Respond(ctx context.Context, message string, history []chat.HistoryEntry) chat.Reply {
	log := logger.FromContext(ctx)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    r.buildMessages(message, history),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
	log.Debug("requesting completion", "model", r.model, "messages", len(req.Messages))

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Error("completion failed; using fallback reply", "error", classify(err))
		return Fallback()
	}

	reply, err := r.readReply(resp)
	if err != nil {
		log.Error("unusable completion; using fallback reply", "error", err)
		return Fallback()
	}
	log.Info("completion received", "model", reply.Metadata.Model, "tokens", reply.Metadata.TokenCount, "finish_reason", reply.Metadata.FinishReason)
	return reply
}

// buildMessages lays out system prompt, history and the latest message. The
// turn persists the user's message before reading history, so when history
// already ends with it, it is not repeated.
func (r *Responder) buildMessages(message string, history []chat.HistoryEntry) []openai.ChatCompletionMessage {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.systemPrompt})

	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}

	if n := len(history); n == 0 || history[n-1].Role != chat.RoleUser || history[n-1].Content != message {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
	}
	return msgs
}

func (r *Responder) readReply(resp openai.ChatCompletionResponse) (chat.Reply, error) {
	if len(resp.Choices) == 0 {
		return chat.Reply{}, fmt.Errorf("%w: response has no choices", chat.ErrUpstreamUnavailable)
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return chat.Reply{}, fmt.Errorf("%w: response has no content", chat.ErrUpstreamUnavailable)
	}

	meta := chat.Metadata{
		Model:        resp.Model,
		TokenCount:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}
	if meta.Model == "" {
		meta.Model = r.model
	}
	if meta.FinishReason == "" {
		meta.FinishReason = finishReasonUnknown
	}
	return chat.Reply{Content: choice.Message.Content, Metadata: meta}, nil
}

// classify wraps a transport or API failure as ErrUpstreamUnavailable with
// whatever status detail the client exposes.
func classify(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out: %w", chat.ErrUpstreamUnavailable, err)
	case errors.As(err, &apiErr):
		return fmt.Errorf("%w: status %d: %w", chat.ErrUpstreamUnavailable, apiErr.HTTPStatusCode, err)
	case errors.As(err, &reqErr):
		return fmt.Errorf("%w: status %d: %w", chat.ErrUpstreamUnavailable, reqErr.HTTPStatusCode, err)
	default:
		return fmt.Errorf("%w: %w", chat.ErrUpstreamUnavailable, err)
	}
}
