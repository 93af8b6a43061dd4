package tool

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type fakeGate struct {
	requests []contractx.QueryRequest
	result   contractx.QueryResult
	err      error
}

func (g *fakeGate) Execute(_ context.Context, req contractx.QueryRequest) (contractx.QueryResult, error) {
	g.requests = append(g.requests, req)
	return g.result, g.err
}

func testBinding() Binding {
	return Binding{
		Policy:    contractx.HandlerPolicy{Domain: contractx.RouteMenu},
		Identity:  "u1",
		CallerKey: "user:u1",
	}
}

func TestInfosOfferExecuteQuery(t *testing.T) {
	t.Parallel()

	infos := Infos(contractx.RouteMenu)
	if len(infos) != 1 {
		t.Fatalf("expected 1 tool info, got %d", len(infos))
	}
	if infos[0].Name != ToolExecuteQuery {
		t.Fatalf("unexpected tool: %s", infos[0].Name)
	}
}

func TestInfosWithoutDomain(t *testing.T) {
	t.Parallel()

	if infos := Infos(contractx.RouteAuthRequired); len(infos) != 0 {
		t.Fatalf("expected no tools, got %d", len(infos))
	}
}

func TestExecutorReportsUnknownTool(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{}
	executor := NewExecutor(gate, testBinding())
	out, err := executor(context.Background(), "math.evaluate", map[string]any{"expression": "1+1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tool != "math.evaluate" || out.Error == "" {
		t.Fatalf("unexpected result: %#v", out)
	}
	if len(gate.requests) != 0 {
		t.Fatal("unknown tool must not reach the gate")
	}
}

func TestExecuteQueryPassesBinding(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{result: contractx.QueryResult{Rows: []contractx.Row{{"name": "Paneer Tikka"}}}}
	executor := NewExecutor(gate, testBinding())

	out, err := executor(context.Background(), ToolExecuteQuery, map[string]any{"sql": "  SELECT name FROM menus  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, ok := out.Result.(QueryOutput)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if result.RowCount != 1 {
		t.Fatalf("unexpected row count: %d", result.RowCount)
	}

	if len(gate.requests) != 1 {
		t.Fatalf("gate called %d times", len(gate.requests))
	}
	req := gate.requests[0]
	if req.SQL != "SELECT name FROM menus" || req.Identity != "u1" || req.CallerKey != "user:u1" || req.Policy.Domain != contractx.RouteMenu {
		t.Fatalf("unexpected request: %#v", req)
	}
}

func TestExecuteQueryValidatesArgs(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{}
	executor := NewExecutor(gate, testBinding())

	for _, args := range []map[string]any{
		{},
		{"sql": 42},
		{"sql": "   "},
	} {
		out, err := executor(context.Background(), ToolExecuteQuery, args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Error == "" {
			t.Fatalf("expected validation error for %#v", args)
		}
	}
	if len(gate.requests) != 0 {
		t.Fatalf("gate called %d times", len(gate.requests))
	}
}

func TestExecuteQueryReportsRejection(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{err: contractx.Reject(contractx.RuleDeniedColumn, "column users.password is denied")}
	executor := NewExecutor(gate, testBinding())

	out, err := executor(context.Background(), ToolExecuteQuery, map[string]any{"sql": "SELECT password FROM users"})
	if !errors.Is(err, contractx.ErrSafetyRejection) {
		t.Fatalf("error = %v, want safety rejection", err)
	}
	if out.Error == "" {
		t.Fatal("expected tool error")
	}
}

func TestExecuteQueryHidesStoreFailure(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{err: contractx.NewStoreFailure("query", errors.New("dial tcp 10.0.0.5:5432: refused"))}
	executor := NewExecutor(gate, testBinding())

	out, err := executor(context.Background(), ToolExecuteQuery, map[string]any{"sql": "SELECT name FROM menus"})
	if !errors.Is(err, contractx.ErrStoreFailure) {
		t.Fatalf("error = %v, want store failure", err)
	}
	if out.Error != "query failed" {
		t.Fatalf("unexpected tool error: %q", out.Error)
	}
}
