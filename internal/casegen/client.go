package casegen

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/neuro-mcq/backend/internal/config"
)

// LLMClient is the interface every model backend satisfies.
type LLMClient interface {
	Generate(ctx context.Context, p Prompt) (*LLMResponse, error)
}

// Prompt is a single-turn request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// NewClient picks the backend from config: Claude CLI, then mock, then the
// Anthropic API. It returns the client and a model label for logs.
func NewClient(cfg config.GeneratorConfig) (LLMClient, string) {
	switch {
	case cfg.UseCLI:
		log.Println("[casegen] Using Claude CLI (local plan)")
		return NewCLIClient(cfg.CLIPath), "claude-cli"
	case cfg.Mock:
		log.Println("[casegen] Using mock generator")
		return NewMockClient(), "mock"
	default:
		log.Println("[casegen] Using Anthropic API:", cfg.Model)
		return NewAPIClient(cfg.APIKey, cfg.Model), cfg.Model
	}
}

// ── APIClient: Anthropic SDK ───────────────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
}

func NewAPIClient(apiKey, model string) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &APIClient{client: &client, model: model}
}

func (c *APIClient) Generate(ctx context.Context, p Prompt) (*LLMResponse, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: param.NewOpt(p.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &LLMResponse{
		Content:      responseText,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[casegen] Retrying Anthropic API call in %v (attempt %d)", wait, attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		log.Printf("[casegen] Anthropic API attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}
