package transport

// Package transport executes the chat completion call against the remote
// service. The engine treats it as a capability: one blocking call per turn,
// cancelled through the context. Timeouts live in the HTTP client and surface
// as ordinary failures.

import (
	"context"

	"github.com/go-go-golems/grillo/pkg/prompt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse marks a well-formed response carrying no choices. It is a
// protocol error, distinct from a transport-level failure.
var ErrEmptyResponse = errors.New("chat completion response contained no choices")

// Transport is the single capability the request lifecycle controller needs.
type Transport interface {
	Complete(ctx context.Context, messages []prompt.Message) (string, error)
}

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
)

type OpenAITransport struct {
	client      *go_openai.Client
	model       string
	maxTokens   int
	temperature float32
}

var _ Transport = (*OpenAITransport)(nil)

type Option func(*OpenAITransport)

func WithModel(model string) Option {
	return func(t *OpenAITransport) {
		if model != "" {
			t.model = model
		}
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(t *OpenAITransport) {
		if maxTokens > 0 {
			t.maxTokens = maxTokens
		}
	}
}

func WithTemperature(temperature float32) Option {
	return func(t *OpenAITransport) {
		t.temperature = temperature
	}
}

func NewOpenAITransport(apiKey string, baseURL string, options ...Option) *OpenAITransport {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	ret := &OpenAITransport{
		client:      go_openai.NewClientWithConfig(config),
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// MakeCompletionRequest maps the assembled messages onto the wire shape.
func MakeCompletionRequest(model string, maxTokens int, temperature float32, messages []prompt.Message) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	return go_openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func (t *OpenAITransport) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	req := MakeCompletionRequest(t.model, t.maxTokens, t.temperature, messages)

	log.Debug().
		Str("model", t.model).
		Int("messages", len(req.Messages)).
		Msg("sending chat completion request")

	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		apiErr := &go_openai.APIError{}
		if errors.As(err, &apiErr) {
			return "", errors.Errorf("chat completion failed: %s (%v)", apiErr.Message, apiErr.Type)
		}
		return "", errors.Wrap(err, "chat completion failed")
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}
