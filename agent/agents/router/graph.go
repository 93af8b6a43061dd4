package router

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/food-delivery-assistant/agent/nodes"
)

func (r *Router) compileRouteGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("read_history",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ReadHistory(ctx, in, r.memory)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node read_history: %w", err)
	}

	if err := graph.AddLambdaNode("guard_identity",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.GuardIdentity(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node guard_identity: %w", err)
	}

	if err := graph.AddLambdaNode("short_circuit",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.ShortCircuit(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node short_circuit: %w", err)
	}

	if err := graph.AddLambdaNode("classify_intent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyIntent(ctx, in, r.registry.Classifier())
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_intent: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_handler",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.DispatchHandler(ctx, in, r.registry)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_handler: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in != nil && in.ShortCircuit {
				return "short_circuit", nil
			}
			return "classify_intent", nil
		},
		map[string]bool{
			"short_circuit":   true,
			"classify_intent": true,
		},
	)
	if err := graph.AddBranch("guard_identity", branch); err != nil {
		return nil, fmt.Errorf("add branch guard_identity: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "read_history"},
		{"read_history", "guard_identity"},
		{"classify_intent", "dispatch_handler"},
		{"dispatch_handler", compose.END},
		{"short_circuit", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("router.route"))
	if err != nil {
		return nil, fmt.Errorf("compile router graph: %w", err)
	}
	return runner, nil
}
