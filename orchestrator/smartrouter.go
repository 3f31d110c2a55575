package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexuskernel/orchestrator/agent"
	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/model"
)

// modelExecutor is the subset of model.Router SmartRouter needs, so tests
// can substitute a fake without constructing a real Router.
type modelExecutor interface {
	Execute(ctx context.Context, taskType core.TaskType, prompt string, opts model.Options) (model.Result, error)
}

// noMatchToken is the closed-vocabulary fallback token spec §4.8 names:
// "a closed vocabulary equal to the registered agent names plus none".
const noMatchToken = "none"

const classificationMaxTokens = 16
const classificationTemperature = 0.0

// SmartRouter is C8: it classifies free-form input against the registry's
// agent names via the model router, and falls back to a direct model
// router call when no agent is a confident match.
//
// Grounded on model.Router's "candidate list, try, fall through" shape but
// narrowed to a single classification call plus one dispatch, since spec
// §4.8 names no retry or fan-out at this layer.
type SmartRouter struct {
	registry *Registry
	models   modelExecutor
}

// NewSmartRouter constructs a SmartRouter over registry and models.
func NewSmartRouter(registry *Registry, models modelExecutor) *SmartRouter {
	return &SmartRouter{registry: registry, models: models}
}

// SmartExecute implements spec §4.8: ask the model router for a
// classification token from {registered agent names, none}; if the token
// names a registered agent, delegate to it; otherwise fall back to a
// direct model-router planning call, wrapped as an AgentResult.
func (s *SmartRouter) SmartExecute(ctx context.Context, freeText string) core.AgentResult {
	names := s.registry.Names()

	if len(names) > 0 {
		token, err := s.classify(ctx, freeText, names)
		if err == nil && token != noMatchToken && contains(names, token) {
			result := s.registry.Delegate(ctx, token, agent.Input{Data: map[string]interface{}{"prompt": freeText}})
			if result.Metadata == nil {
				result.Metadata = map[string]interface{}{}
			}
			result.Metadata["routedVia"] = "classification"
			result.Metadata["matchedAgent"] = token
			return result
		}
	}

	return s.fallback(ctx, freeText)
}

func (s *SmartRouter) classify(ctx context.Context, freeText string, names []string) (string, error) {
	prompt := classificationPrompt(freeText, names)
	result, err := s.models.Execute(ctx, core.TaskTypePlanning, prompt, model.Options{
		Temperature: classificationTemperature,
		MaxTokens:   classificationMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToLower(result.Content)), nil
}

func classificationPrompt(freeText string, names []string) string {
	return fmt.Sprintf(
		"Classify the request below. Respond with exactly one of: %s, %s.\nRequest: %s",
		strings.Join(names, ", "), noMatchToken, freeText,
	)
}

func (s *SmartRouter) fallback(ctx context.Context, freeText string) core.AgentResult {
	result, err := s.models.Execute(ctx, core.TaskTypePlanning, freeText, model.Options{})
	if err != nil {
		return core.Err("smart_route_fallback_failed", err.Error(), core.CategorySystem, true, result.ExecutionTime, map[string]interface{}{"routedVia": "modelRouterFallback"})
	}
	return core.Ok(map[string]interface{}{"content": result.Content}, result.ExecutionTime, map[string]interface{}{
		"routedVia": "modelRouterFallback",
		"provider":  result.Provider,
	})
}

func contains(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
