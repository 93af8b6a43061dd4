package handler

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

// Prompt text is passed through the "system" variable so braces inside the
// instructions are never read as template placeholders.
func conversationTemplate() *einoprompt.DefaultChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{input}"),
	)
}

func compileClassifierGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[map[string]any, classifierLLMOutput], error) {
	runner, err := compileStructuredLLMGraph[classifierLLMOutput](ctx, chatModel, "classifier.model_graph")
	if err != nil {
		return nil, fmt.Errorf("compile classifier graph: %w", err)
	}
	return runner, nil
}

func compileToolPlanningGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	route contractx.Route,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	return compileChatGraph(ctx, chatModel, "handler."+string(route)+".tool_planning_graph")
}

func compileAnswerGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	route contractx.Route,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	return compileChatGraph(ctx, chatModel, "handler."+string(route)+".answer_graph")
}

func compileChatGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	graphName string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", conversationTemplate()); err != nil {
		return nil, fmt.Errorf("add %s prompt node: %w", graphName, err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add %s model node: %w", graphName, err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add %s edge start->prompt: %w", graphName, err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add %s edge prompt->model: %w", graphName, err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add %s edge model->end: %w", graphName, err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", graphName, err)
	}
	return runner, nil
}

// handlerGraphInput carries the emitter through the runtime graph; the fixed
// reply and answer paths both write to it.
type handlerGraphInput struct {
	Req  contractx.HandlerRequest
	Emit contractx.Emitter
}

type handlerGraphState struct {
	In         handlerGraphInput
	FixedReply string
}

func compileHandlerRuntimeGraph(
	ctx context.Context,
	route contractx.Route,
	prepare func(contractx.HandlerRequest) (string, error),
	answerFlow func(context.Context, handlerGraphInput) (handlerOutcome, error),
) (compose.Runnable[handlerGraphInput, handlerOutcome], error) {
	graph := compose.NewGraph[handlerGraphInput, handlerOutcome]()

	if err := graph.AddLambdaNode("validate_and_prepare",
		compose.InvokableLambda(func(ctx context.Context, in handlerGraphInput) (*handlerGraphState, error) {
			if in.Emit == nil {
				return nil, fmt.Errorf("%w: emitter is required", contractx.ErrValidation)
			}
			if strings.TrimSpace(in.Req.Query) == "" {
				return nil, fmt.Errorf("%w: query is required", contractx.ErrValidation)
			}
			fixed, err := prepare(in.Req)
			if err != nil {
				return nil, err
			}
			return &handlerGraphState{In: in, FixedReply: fixed}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add handler runtime validate node: %w", err)
	}

	if err := graph.AddLambdaNode("fixed_reply",
		compose.InvokableLambda(func(ctx context.Context, st *handlerGraphState) (handlerOutcome, error) {
			if st == nil {
				return handlerOutcome{}, fmt.Errorf("%w: handler graph state is nil", contractx.ErrValidation)
			}
			return emitText(st.In.Emit, outcomeFixed, st.FixedReply), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add handler runtime fixed node: %w", err)
	}

	if err := graph.AddLambdaNode("answer_path",
		compose.InvokableLambda(func(ctx context.Context, st *handlerGraphState) (handlerOutcome, error) {
			if st == nil {
				return handlerOutcome{}, fmt.Errorf("%w: handler graph state is nil", contractx.ErrValidation)
			}
			return answerFlow(ctx, st.In)
		}),
	); err != nil {
		return nil, fmt.Errorf("add handler runtime answer node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, st *handlerGraphState) (string, error) {
			if st == nil {
				return "", fmt.Errorf("%w: handler graph state is nil", contractx.ErrValidation)
			}
			if st.FixedReply != "" {
				return "fixed_reply", nil
			}
			return "answer_path", nil
		},
		map[string]bool{
			"fixed_reply": true,
			"answer_path": true,
		},
	)

	if err := graph.AddBranch("validate_and_prepare", branch); err != nil {
		return nil, fmt.Errorf("add handler runtime branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "validate_and_prepare"); err != nil {
		return nil, fmt.Errorf("add handler runtime edge start->validate: %w", err)
	}
	if err := graph.AddEdge("fixed_reply", compose.END); err != nil {
		return nil, fmt.Errorf("add handler runtime edge fixed->end: %w", err)
	}
	if err := graph.AddEdge("answer_path", compose.END); err != nil {
		return nil, fmt.Errorf("add handler runtime edge answer->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("handler."+string(route)+".runtime_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile handler runtime graph: %w", err)
	}
	return runner, nil
}

func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}
