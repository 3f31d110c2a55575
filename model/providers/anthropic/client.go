// Package anthropic adapts the official github.com/anthropics/anthropic-sdk-go
// client to the core.AIClient contract so it can be registered into the
// model router under the anthropic-class capability (spec §4.5).
//
// Grounded on the goadesign-goa-ai example's features/model/anthropic
// adapter: same sdk.NewClient(option.WithAPIKey(...)) construction and
// Messages.New(...) call shape, narrowed from goa-ai's multi-message/tool
// planner request down to the single prompt+system-prompt completion
// core.AIClient.GenerateResponse names.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexuskernel/orchestrator/core"
)

// DefaultModel is used when no AIOptions.Model is supplied.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 1024

// Client implements core.AIClient on top of the Anthropic Messages API.
type Client struct {
	messages messagesAPI
	logger   core.Logger
}

// messagesAPI captures the subset of *sdk.MessageService the adapter
// uses, so tests can substitute a fake without a live API key.
type messagesAPI interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// New constructs a Client from an API key, using the SDK's default HTTP
// transport.
func New(apiKey string, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Client{messages: &c.Messages, logger: logger}
}

// NewWithMessagesAPI constructs a Client against an injected messagesAPI,
// for unit tests that don't want to reach the real Anthropic API.
func NewWithMessagesAPI(messages messagesAPI, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Client{messages: messages, logger: logger}
}

// GenerateResponse satisfies core.AIClient.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if options == nil {
		options = &core.AIOptions{}
	}
	model := options.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if options.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: options.SystemPrompt}}
	}
	if options.Temperature > 0 {
		params.Temperature = sdk.Float(float64(options.Temperature))
	}

	msg, err := c.messages.New(ctx, params)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var content string
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			content += text
		}
	}

	return &core.AIResponse{
		Content: content,
		Model:   string(msg.Model),
		Usage: core.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// classifyTransportError folds an SDK error into a message containing one
// of core.ClassifyError's vocabulary words, so the model router's
// ClassifyError(err.Error()) call derives the right category. The SDK's
// error carries an HTTP status in its message text (e.g. "429 Too Many
// Requests"); matching on that substring keeps this adapter decoupled
// from the SDK's internal error type.
func classifyTransportError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return fmt.Errorf("anthropic rate limit exceeded: %w", err)
	case strings.Contains(msg, "408"), strings.Contains(msg, "504"), strings.Contains(msg, "context deadline exceeded"):
		return fmt.Errorf("anthropic request timeout: %w", err)
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return fmt.Errorf("anthropic service temporary unavailable: %w", err)
	default:
		return fmt.Errorf("anthropic network error: %w", err)
	}
}
