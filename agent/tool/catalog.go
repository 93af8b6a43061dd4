package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

const (
	ToolExecuteQuery = "execute_query"
)

type Executor func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error)

// Binding scopes tool execution to one handler turn.
type Binding struct {
	Policy    contractx.HandlerPolicy
	Identity  string
	CallerKey string
}

type QueryOutput struct {
	Rows     []contractx.Row `json:"rows"`
	RowCount int             `json:"row_count"`
}

// NewExecutor runs tool calls for a handler. Tool-level problems are reported
// in ToolResult.Error; gate rejections and store failures are also returned
// as typed errors so the caller can tell them apart.
func NewExecutor(gate contractx.QueryGate, binding Binding) Executor {
	fallback := unavailable(binding.Policy.Domain)
	return func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
		switch tool {
		case ToolExecuteQuery:
			return executeQueryTool(ctx, gate, binding, tool, args)
		default:
			return fallback(ctx, tool, args)
		}
	}
}

func unavailable(domain contractx.Route) Executor {
	return func(ctx context.Context, tool string, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s is unavailable for handler=%s", tool, domain),
		}, nil
	}
}

func executeQueryTool(ctx context.Context, gate contractx.QueryGate, binding Binding, tool string, args map[string]any) (contractx.ToolResult, error) {
	raw, ok := args["sql"]
	if !ok {
		return contractx.ToolResult{Tool: tool, Error: "sql is required"}, nil
	}
	text, ok := raw.(string)
	if !ok {
		return contractx.ToolResult{Tool: tool, Error: "sql must be a string"}, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return contractx.ToolResult{Tool: tool, Error: "sql is empty"}, nil
	}
	if gate == nil {
		return contractx.ToolResult{Tool: tool, Error: "query execution is unavailable"}, errors.New("query gate is not configured")
	}

	result, err := gate.Execute(ctx, contractx.QueryRequest{
		SQL:       text,
		Identity:  binding.Identity,
		CallerKey: binding.CallerKey,
		Policy:    binding.Policy,
	})
	if err != nil {
		var rejection *contractx.SafetyRejection
		switch {
		case errors.As(err, &rejection):
			return contractx.ToolResult{Tool: tool, Error: "query rejected: " + rejection.Reason}, err
		case errors.Is(err, contractx.ErrStoreFailure):
			return contractx.ToolResult{Tool: tool, Error: "query failed"}, err
		default:
			return contractx.ToolResult{Tool: tool, Error: "query failed"}, contractx.NewStoreFailure(tool, err)
		}
	}

	return contractx.ToolResult{
		Tool: tool,
		Result: QueryOutput{
			Rows:     result.Rows,
			RowCount: len(result.Rows),
		},
	}, nil
}

// Infos returns the tools offered to the handler of domain.
func Infos(domain contractx.Route) []*schema.ToolInfo {
	if !domain.IsHandler() {
		return nil
	}
	return []*schema.ToolInfo{
		{
			Name: ToolExecuteQuery,
			Desc: fmt.Sprintf("Run one read-only PostgreSQL SELECT over the %s data. Write filter values as plain literals; they are bound before execution.", domain),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"sql": {Type: schema.String, Desc: "A single SELECT statement", Required: true},
			}),
		},
	}
}
