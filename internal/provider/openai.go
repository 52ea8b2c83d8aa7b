package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/venedict/inquest/internal/model"
)

// OpenAIProvider implements the reasoning capability over the OpenAI
// Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    model.ProviderConfig
}

// NewOpenAIProvider creates a new OpenAI reasoning provider
func NewOpenAIProvider(cfg model.ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	if p.cfg.Name != "" {
		return p.cfg.Name
	}
	return "openai"
}

// Complete runs one chat completion and translates vendor failures into
// the typed taxonomy.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	mdl := p.cfg.Model
	if mdl == "" {
		mdl = openai.GPT4oMini
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1000
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       mdl,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, p.classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(p.Name(), ErrInvalidResponse, fmt.Errorf("no completion choices"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, NewError(p.Name(), ErrInvalidResponse, fmt.Errorf("empty completion"))
	}

	return &CompletionResponse{
		Text:       text,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			e := NewError(p.Name(), ErrRateLimited, err)
			e.RetryAfter = 2 * time.Second
			return e
		case apiErr.HTTPStatusCode >= 500:
			return NewError(p.Name(), ErrProviderUnavailable, err)
		case apiErr.HTTPStatusCode >= 400:
			return NewError(p.Name(), ErrInvalidResponse, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	// Network-level failures surface as generic errors from the SDK
	return NewError(p.Name(), ErrProviderUnavailable, err)
}
