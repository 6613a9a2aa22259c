package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

// OpenAIProvider implements Provider over the Chat Completions API
type OpenAIProvider struct {
	client *openai.Client
	config model.LLMConfig
	logger logging.Logger
}

// NewOpenAIProvider creates an OpenAI provider. BaseURL points it at any
// compatible endpoint.
func NewOpenAIProvider(config model.LLMConfig, logger logging.Logger) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable lists models as a lightweight credentials check
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	if _, err := p.client.ListModels(ctx); err != nil {
		p.logger.Warn("openai availability check failed", logging.Err(err))
		return false
	}
	return true
}

// Summarize generates a digest with Chat Completions
func (p *OpenAIProvider) Summarize(ctx context.Context, req Request) (*Response, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = BuildPrompt(req.Deals, req.SourceURLs)
	}

	model := firstNonEmpty(req.Model, p.config.Model, openai.GPT4oMini)
	maxTokens := firstPositive(req.MaxTokens, p.config.MaxTokens, defaultMaxTokens)

	timeout := p.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	cited := extractURLs(summary)
	if err := checkCitations(cited, req.SourceURLs); err != nil {
		return nil, err
	}

	return &Response{
		Summary:    summary,
		CitedURLs:  cited,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
