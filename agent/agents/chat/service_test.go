package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tanpawarit/food-delivery-assistant/agent/agents/assembler"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"github.com/tanpawarit/food-delivery-assistant/agent/memory"
	nodex "github.com/tanpawarit/food-delivery-assistant/agent/nodes"
)

type fakeRouter struct {
	parts []string
	err   error
	reqs  []contractx.RouteRequest
}

func (f *fakeRouter) Route(ctx context.Context, req contractx.RouteRequest, emit contractx.Emitter) (nodex.GraphOutput, error) {
	f.reqs = append(f.reqs, req)
	for _, p := range f.parts {
		if err := emit(p); err != nil {
			return nodex.GraphOutput{}, err
		}
	}
	return nodex.GraphOutput{Route: contractx.RouteMenu}, f.err
}

type appendCall struct {
	key  string
	turn contractx.Turn
}

type fakeMemory struct {
	mu    sync.Mutex
	calls []appendCall
}

func (f *fakeMemory) Append(ctx context.Context, sessionKey string, turn contractx.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, appendCall{key: sessionKey, turn: turn})
	return nil
}

func (f *fakeMemory) Recent(ctx context.Context, sessionKey string) ([]contractx.Turn, error) {
	return nil, nil
}

type bodySink struct {
	b strings.Builder
}

func (s *bodySink) Send(f contractx.Fragment) error {
	s.b.WriteString(f.Delta)
	return nil
}

func newTestService(t *testing.T, router Router, mem *fakeMemory) *Service {
	t.Helper()
	asm, err := assembler.New(mem)
	if err != nil {
		t.Fatalf("assembler.New() error = %v", err)
	}
	svc, err := New(router, mem, asm)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestChatRecordsBothTurns(t *testing.T) {
	t.Parallel()

	router := &fakeRouter{parts: []string{"1. Paneer Tikka", " (veg)"}}
	mem := &fakeMemory{}
	svc := newTestService(t, router, mem)

	sink := &bodySink{}
	res, err := svc.Chat(context.Background(), contractx.ChatRequest{Query: "  veg dishes ", Identity: "42"}, sink)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "1. Paneer Tikka (veg)" || sink.b.String() != res.Text {
		t.Fatalf("text=%q body=%q", res.Text, sink.b.String())
	}

	if len(mem.calls) != 2 {
		t.Fatalf("expected user and assistant turns, got %d", len(mem.calls))
	}
	if mem.calls[0].key != "user:42" || mem.calls[0].turn.Role != contractx.RoleUser || mem.calls[0].turn.Content != "veg dishes" {
		t.Fatalf("unexpected user turn: %+v", mem.calls[0])
	}
	if mem.calls[1].turn.Role != contractx.RoleAssistant {
		t.Fatalf("unexpected assistant turn: %+v", mem.calls[1])
	}
	if router.reqs[0].CallerKey != "user:42" || router.reqs[0].Identity != "42" || router.reqs[0].Query != "veg dishes" {
		t.Fatalf("unexpected route request: %+v", router.reqs[0])
	}
}

func TestChatAnonymousSessionKeyFromOrigin(t *testing.T) {
	t.Parallel()

	router := &fakeRouter{parts: []string{"hi"}}
	mem := &fakeMemory{}
	svc := newTestService(t, router, mem)

	if _, err := svc.Chat(context.Background(), contractx.ChatRequest{Query: "hello", Origin: "10.0.0.8"}, &bodySink{}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	want := memory.SessionKey("", "10.0.0.8")
	if router.reqs[0].CallerKey != want || mem.calls[0].key != want {
		t.Fatalf("session key = %q, want %q", router.reqs[0].CallerKey, want)
	}
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	router := &fakeRouter{}
	mem := &fakeMemory{}
	svc := newTestService(t, router, mem)

	_, err := svc.Chat(context.Background(), contractx.ChatRequest{Query: "   "}, &bodySink{})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if len(mem.calls) != 0 || len(router.reqs) != 0 {
		t.Fatal("nothing may run for an empty query")
	}
}

func TestChatRouterFailureEndsWithMarker(t *testing.T) {
	t.Parallel()

	router := &fakeRouter{parts: []string{"Looking"}, err: contractx.ErrModelInvoke}
	mem := &fakeMemory{}
	svc := newTestService(t, router, mem)

	sink := &bodySink{}
	res, err := svc.Chat(context.Background(), contractx.ChatRequest{Query: "menu", Identity: "1"}, sink)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !res.Partial || sink.b.String() != "Looking"+assembler.ErrorMarker {
		t.Fatalf("unexpected result %+v body=%q", res, sink.b.String())
	}
	if len(mem.calls) != 2 || mem.calls[1].turn.Content != "Looking" {
		t.Fatalf("partial turn not persisted: %+v", mem.calls)
	}
}

func TestRecentHistoryDropsInvalidAndCaps(t *testing.T) {
	t.Parallel()

	turns := []contractx.Turn{{Role: "robot", Content: "x"}, {Role: contractx.RoleUser, Content: " "}}
	for i := 0; i < 10; i++ {
		turns = append(turns, contractx.Turn{Role: contractx.RoleUser, Content: "q", Timestamp: int64(i)})
	}

	got := recentHistory(turns)
	if len(got) != maxRequestHistory {
		t.Fatalf("len = %d, want %d", len(got), maxRequestHistory)
	}
	if got[0].Timestamp != 2 || got[len(got)-1].Timestamp != 9 {
		t.Fatalf("unexpected window: %+v", got)
	}
}
