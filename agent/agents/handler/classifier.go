package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type classifierImpl struct {
	runner       compose.Runnable[map[string]any, classifierLLMOutput]
	systemPrompt string
}

type classifierLLMOutput struct {
	Route    string `json:"route"`
	FollowUp bool   `json:"follow_up"`
	Reason   string `json:"reason,omitempty"`
}

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*classifierImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: router prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileClassifierGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &classifierImpl{runner: runner, systemPrompt: systemPrompt}, nil
}

// Classify asks the model for a route. The returned route is the model's raw
// choice; callers decide what an undeclared value means.
func (c *classifierImpl) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}

	history := req.History
	if history == nil {
		history = []contractx.Turn{}
	}
	inputBytes, err := json.Marshal(map[string]any{
		"query":         req.Query,
		"authenticated": req.Identity,
		"history":       history,
	})
	if err != nil {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: marshal classifier payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"system": c.systemPrompt,
		"input":  string(inputBytes),
	})
	if err != nil {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	resp := contractx.ClassifyResponse{
		Route:    strings.TrimSpace(out.Route),
		FollowUp: out.FollowUp,
		Reason:   strings.TrimSpace(out.Reason),
	}
	if resp.Route == "" {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: route is empty", contractx.ErrSchemaViolation)
	}
	return resp, nil
}
