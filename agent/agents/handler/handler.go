package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"github.com/tanpawarit/food-delivery-assistant/agent/policy"
	"github.com/tanpawarit/food-delivery-assistant/agent/sqlgate"
	"github.com/tanpawarit/food-delivery-assistant/agent/tool"
)

const maxCandidates = 3

const genericApology = "Sorry, something went wrong while looking that up. Please try again in a moment."

type outcomeKind string

const (
	outcomeFixed    outcomeKind = "fixed"
	outcomeDirect   outcomeKind = "direct"
	outcomeRejected outcomeKind = "rejected"
	outcomeFailed   outcomeKind = "failed"
	outcomeEmpty    outcomeKind = "empty"
	outcomeAnswered outcomeKind = "answered"
)

// handlerOutcome summarises one turn. Err carries turn-level failures out of
// the runtime graph unchanged.
type handlerOutcome struct {
	Kind     outcomeKind
	Executed int
	Rejected int
	Failed   int
	Rows     int
	Err      error
}

var _ contractx.Handler = (*handlerImpl)(nil)

type handlerImpl struct {
	route         contractx.Route
	policy        contractx.HandlerPolicy
	gate          contractx.QueryGate
	systemPrompt  string
	answerPrompt  string
	toolRunner    compose.Runnable[map[string]any, *schema.Message]
	answerRunner  compose.Runnable[map[string]any, *schema.Message]
	runtimeRunner compose.Runnable[handlerGraphInput, handlerOutcome]
	allowedTools  map[string]struct{}
}

func newHandler(
	ctx context.Context,
	route contractx.Route,
	chatModel einomodel.ToolCallingChatModel,
	gate contractx.QueryGate,
	catalog sqlgate.Catalog,
	domainPrompt string,
	answerPrompt string,
) (*handlerImpl, error) {
	pol, ok := policy.For(route)
	if !ok {
		return nil, fmt.Errorf("%w: route=%s has no handler", contractx.ErrValidation, route)
	}
	if strings.TrimSpace(domainPrompt) == "" {
		return nil, fmt.Errorf("%w: prompt for handler=%s", contractx.ErrPromptMissing, route)
	}
	if strings.TrimSpace(answerPrompt) == "" {
		return nil, fmt.Errorf("%w: answer prompt", contractx.ErrPromptMissing)
	}

	tools := tool.Infos(route)
	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for handler=%s: %v", contractx.ErrModelInvoke, route, err)
	}
	toolRunner, err := compileToolPlanningGraph(ctx, toolModel, route)
	if err != nil {
		return nil, fmt.Errorf("%w: compile tool planning graph: %v", contractx.ErrModelInvoke, err)
	}
	answerRunner, err := compileAnswerGraph(ctx, chatModel, route)
	if err != nil {
		return nil, fmt.Errorf("%w: compile answer graph: %v", contractx.ErrModelInvoke, err)
	}

	allowedTools := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowedTools[t.Name] = struct{}{}
	}

	h := &handlerImpl{
		route:        route,
		policy:       pol,
		gate:         gate,
		systemPrompt: domainPrompt + "\n\nYou may query these relations:\n" + describeSchema(catalog, pol),
		answerPrompt: domainPrompt + "\n\n" + answerPrompt,
		toolRunner:   toolRunner,
		answerRunner: answerRunner,
		allowedTools: allowedTools,
	}

	runtimeRunner, err := compileHandlerRuntimeGraph(ctx, route, h.prepare, h.runAnswer)
	if err != nil {
		return nil, fmt.Errorf("%w: compile handler runtime graph: %v", contractx.ErrModelInvoke, err)
	}
	h.runtimeRunner = runtimeRunner

	return h, nil
}

func (h *handlerImpl) Route() contractx.Route {
	return h.route
}

// Handle answers one routed turn through emit. Every path writes text or
// returns an error; partial output may precede an error.
func (h *handlerImpl) Handle(ctx context.Context, req contractx.HandlerRequest, emit contractx.Emitter) error {
	if req.Route != "" && req.Route != h.route {
		return fmt.Errorf("%w: request for route=%s sent to handler=%s", contractx.ErrValidation, req.Route, h.route)
	}

	out, err := h.runtimeRunner.Invoke(ctx, handlerGraphInput{Req: req, Emit: emit})
	if err != nil {
		return err
	}

	log.Info().
		Str("route", string(h.route)).
		Str("caller", req.CallerKey).
		Str("outcome", string(out.Kind)).
		Int("executed", out.Executed).
		Int("rejected", out.Rejected).
		Int("failed", out.Failed).
		Int("rows", out.Rows).
		Msg("handler: turn completed")

	return out.Err
}

// prepare returns the fixed reply for requests that must not reach the model.
func (h *handlerImpl) prepare(req contractx.HandlerRequest) (string, error) {
	if strings.TrimSpace(req.Identity) != "" {
		return "", nil
	}
	if !h.policy.RequireIdentity && h.route.Scope() != contractx.ScopeUser {
		return "", nil
	}
	if msg := h.policy.SignInMessage; msg != "" {
		return msg, nil
	}
	return contractx.LoginRequiredMessage, nil
}

func (h *handlerImpl) runAnswer(ctx context.Context, in handlerGraphInput) (handlerOutcome, error) {
	req := in.Req
	pol := policy.ForQuery(h.policy, req.Query)
	history := toMessages(req.History)

	msg, err := h.toolRunner.Invoke(ctx, map[string]any{
		"system":  h.systemPrompt + "\n\n" + callerStatus(req.Identity),
		"history": history,
		"input":   req.Query,
	})
	if err != nil {
		return handlerOutcome{Err: fmt.Errorf("%w: tool planning invoke: %v", contractx.ErrModelInvoke, err)}, nil
	}
	if msg == nil {
		return handlerOutcome{Err: fmt.Errorf("%w: empty tool planning response", contractx.ErrSchemaViolation)}, nil
	}

	toolRequests, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return handlerOutcome{Err: err}, nil
	}
	if len(toolRequests) == 0 {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = pol.Apology
		}
		return emitText(in.Emit, outcomeDirect, content), nil
	}
	if len(toolRequests) > maxCandidates {
		log.Warn().
			Str("route", string(h.route)).
			Int("proposed", len(toolRequests)).
			Msg("handler: too many candidate queries, extra ones dropped")
		toolRequests = toolRequests[:maxCandidates]
	}

	out, results := h.execute(ctx, pol, req, toolRequests)
	switch {
	case out.Executed == 0 && out.Failed > 0:
		return withCounts(emitText(in.Emit, outcomeFailed, genericApology), out), nil
	case out.Executed == 0:
		return withCounts(emitText(in.Emit, outcomeRejected, pol.Apology), out), nil
	case out.Rows == 0:
		return withCounts(emitText(in.Emit, outcomeEmpty, pol.EmptyMessage), out), nil
	}

	out.Kind = outcomeAnswered
	out.Err = h.streamAnswer(ctx, in, history, results)
	return out, nil
}

func (h *handlerImpl) execute(
	ctx context.Context,
	pol contractx.HandlerPolicy,
	req contractx.HandlerRequest,
	toolRequests []contractx.ToolRequest,
) (handlerOutcome, []contractx.ToolResult) {
	executor := tool.NewExecutor(h.gate, tool.Binding{
		Policy:    pol,
		Identity:  strings.TrimSpace(req.Identity),
		CallerKey: req.CallerKey,
	})

	var out handlerOutcome
	results := make([]contractx.ToolResult, 0, len(toolRequests))
	for _, tr := range toolRequests {
		if _, ok := h.allowedTools[tr.Tool]; !ok {
			log.Warn().Str("route", string(h.route)).Str("tool", tr.Tool).Msg("handler: tool is not allowed")
			out.Rejected++
			continue
		}

		res, err := executor(ctx, tr.Tool, tr.Args)
		switch {
		case errors.Is(err, contractx.ErrSafetyRejection):
			out.Rejected++
		case err != nil:
			log.Error().Err(err).Str("route", string(h.route)).Msg("handler: query execution failed")
			out.Failed++
		case res.Error != "":
			out.Rejected++
		default:
			out.Executed++
			if qo, ok := res.Result.(tool.QueryOutput); ok {
				out.Rows += qo.RowCount
			}
			results = append(results, res)
		}
	}
	return out, results
}

// streamAnswer forwards model chunks as they arrive. A failed emit cancels
// the model call and ends the turn.
func (h *handlerImpl) streamAnswer(
	ctx context.Context,
	in handlerGraphInput,
	history []*schema.Message,
	results []contractx.ToolResult,
) error {
	input, err := json.Marshal(map[string]any{
		"question": in.Req.Query,
		"results":  results,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal answer payload: %v", contractx.ErrValidation, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader, err := h.answerRunner.Stream(ctx, map[string]any{
		"system":  h.answerPrompt,
		"history": history,
		"input":   string(input),
	})
	if err != nil {
		return fmt.Errorf("%w: answer stream: %v", contractx.ErrModelInvoke, err)
	}
	defer reader.Close()

	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: answer stream recv: %v", contractx.ErrModelInvoke, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := in.Emit(chunk.Content); err != nil {
			return fmt.Errorf("%w: %v", contractx.ErrStreamFailure, err)
		}
	}
}

func emitText(emit contractx.Emitter, kind outcomeKind, text string) handlerOutcome {
	out := handlerOutcome{Kind: kind}
	if err := emit(text); err != nil {
		out.Err = fmt.Errorf("%w: %v", contractx.ErrStreamFailure, err)
	}
	return out
}

func withCounts(out, counts handlerOutcome) handlerOutcome {
	out.Executed = counts.Executed
	out.Rejected = counts.Rejected
	out.Failed = counts.Failed
	out.Rows = counts.Rows
	return out
}

func callerStatus(identity string) string {
	if strings.TrimSpace(identity) == "" {
		return "The customer is not signed in."
	}
	return "The customer is signed in."
}

func describeSchema(catalog sqlgate.Catalog, pol contractx.HandlerPolicy) string {
	rels := make([]string, 0, len(pol.AllowedRelations))
	for rel := range pol.AllowedRelations {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return catalog.Describe(rels, pol.DeniesColumn)
}

func toMessages(turns []contractx.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		switch t.Role {
		case contractx.RoleUser:
			out = append(out, schema.UserMessage(t.Content))
		case contractx.RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		case contractx.RoleSystem:
			out = append(out, schema.SystemMessage(t.Content))
		}
	}
	return out
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{
			Tool: name,
			Args: args,
		})
	}
	return reqs, nil
}
