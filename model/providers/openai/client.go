// Package openai adapts the official github.com/openai/openai-go client to
// the core.AIClient contract so it can be registered into the model
// router under the openai-class capability (spec §4.5).
//
// Grounded on the same adapter shape as model/providers/anthropic (an
// injectable narrow interface over the SDK's chat-completions service),
// since no example repo in the retrieval pack wires the official
// openai-go SDK directly — goadesign-goa-ai's OpenAI adapter uses the
// unofficial sashabaranov/go-openai client instead. This repo uses the
// go.mod-listed official SDK per the spec's domain-stack expansion, kept
// to the same narrow-interface-plus-Complete-method idiom the pack's
// Anthropic adapter demonstrates.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nexuskernel/orchestrator/core"
)

// DefaultModel is used when no AIOptions.Model is supplied.
const DefaultModel = "gpt-4o"

const defaultMaxTokens = 1024

// chatAPI captures the subset of the SDK's chat completion service used
// by the adapter, so tests can substitute a fake.
type chatAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements core.AIClient on top of the OpenAI Chat Completions API.
type Client struct {
	chat   chatAPI
	logger core.Logger
}

// New constructs a Client from an API key, using the SDK's default HTTP
// transport.
func New(apiKey string, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{chat: &c.Chat.Completions, logger: logger}
}

// NewWithChatAPI constructs a Client against an injected chatAPI, for unit
// tests that don't want to reach the real OpenAI API.
func NewWithChatAPI(chat chatAPI, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Client{chat: chat, logger: logger}
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

	messages := []openai.ChatCompletionMessageParamUnion{}
	if options.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(options.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if options.Temperature > 0 {
		params.Temperature = openai.Float(float64(options.Temperature))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: execution failed, empty choices in response")
	}

	return &core.AIResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: core.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// classifyTransportError folds an SDK error into a message containing one
// of core.ClassifyError's vocabulary words.
func classifyTransportError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return fmt.Errorf("openai rate limit exceeded: %w", err)
	case strings.Contains(msg, "408"), strings.Contains(msg, "504"), strings.Contains(msg, "context deadline exceeded"):
		return fmt.Errorf("openai request timeout: %w", err)
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return fmt.Errorf("openai service temporary unavailable: %w", err)
	default:
		return fmt.Errorf("openai network error: %w", err)
	}
}
