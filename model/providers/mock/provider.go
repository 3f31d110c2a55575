// Package mock provides a scriptable core.AIClient double for exercising
// the model router and smart router without a live provider, grounded on
// itsneelabh-gomind's ai/providers/mock test double but narrowed to the
// single GenerateResponse method this repo's AIClient contract needs.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/nexuskernel/orchestrator/core"
)

// Client is a canned-response / canned-error AIClient. Respond and Err are
// read on every call; set one or the other before registering the client.
type Client struct {
	calls atomic.Int64

	Respond func(prompt string, options *core.AIOptions) *core.AIResponse
	Err     error
}

// New constructs a Client that always returns content.
func New(content string) *Client {
	return &Client{Respond: func(prompt string, options *core.AIOptions) *core.AIResponse {
		return &core.AIResponse{Content: content, Model: "mock-model"}
	}}
}

// NewFailing constructs a Client that always fails with err.
func NewFailing(err error) *Client {
	return &Client{Err: err}
}

// GenerateResponse satisfies core.AIClient.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Respond != nil {
		return c.Respond(prompt, options), nil
	}
	return &core.AIResponse{Content: prompt}, nil
}

// Calls reports how many times GenerateResponse was invoked.
func (c *Client) Calls() int64 { return c.calls.Load() }
