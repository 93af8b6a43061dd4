package assembler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type fakeMemory struct {
	appended  []contractx.Turn
	keys      []string
	appendErr error
}

func (f *fakeMemory) Append(ctx context.Context, sessionKey string, turn contractx.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.appendErr != nil {
		return f.appendErr
	}
	f.keys = append(f.keys, sessionKey)
	f.appended = append(f.appended, turn)
	return nil
}

func (f *fakeMemory) Recent(ctx context.Context, sessionKey string) ([]contractx.Turn, error) {
	return f.appended, nil
}

type recordingSink struct {
	fragments []contractx.Fragment
	failAfter int
}

func (s *recordingSink) Send(f contractx.Fragment) error {
	if s.failAfter > 0 && len(s.fragments) >= s.failAfter {
		return errors.New("broken pipe")
	}
	s.fragments = append(s.fragments, f)
	return nil
}

func (s *recordingSink) body() string {
	var b strings.Builder
	for _, f := range s.fragments {
		b.WriteString(f.Delta)
	}
	return b.String()
}

func newTestAssembler(t *testing.T, memory *fakeMemory) *Assembler {
	t.Helper()
	fixed := time.UnixMilli(1_700_000_000_000)
	a, err := New(memory, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func produceAll(parts ...string) Producer {
	return func(ctx context.Context, emit contractx.Emitter) error {
		for _, p := range parts {
			if err := emit(p); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestRunForwardsFragmentsAndPersistsTurn(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{}

	res := a.Run(context.Background(), "user:1", sink, produceAll("1. Toit", "\n", "2. Truffles"))
	if res.Err != nil || res.Partial {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sink.fragments) != 4 {
		t.Fatalf("expected 3 deltas and a terminal fragment, got %d", len(sink.fragments))
	}
	for i, f := range sink.fragments {
		if f.Ordinal != i+1 {
			t.Fatalf("fragment %d ordinal = %d", i, f.Ordinal)
		}
	}
	if !sink.fragments[3].Terminal || sink.fragments[3].Delta != "" {
		t.Fatalf("last fragment = %+v, want terminal", sink.fragments[3])
	}
	if sink.body() != "1. Toit\n2. Truffles" {
		t.Fatalf("body = %q", sink.body())
	}

	if len(memory.appended) != 1 {
		t.Fatalf("expected 1 appended turn, got %d", len(memory.appended))
	}
	turn := memory.appended[0]
	if turn.Role != contractx.RoleAssistant || turn.Content != "1. Toit\n2. Truffles" || turn.Timestamp != 1_700_000_000_000 {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if memory.keys[0] != "user:1" {
		t.Fatalf("session key = %q", memory.keys[0])
	}
}

func TestRunProducerErrorAfterPartialOutput(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{}

	res := a.Run(context.Background(), "anon:1", sink, func(ctx context.Context, emit contractx.Emitter) error {
		if err := emit("Here are "); err != nil {
			return err
		}
		if err := emit("some dishes"); err != nil {
			return err
		}
		return errors.New("model connection reset")
	})

	if !res.Partial || res.Err == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sink.body() != "Here are some dishes"+ErrorMarker {
		t.Fatalf("body = %q", sink.body())
	}
	if !sink.fragments[len(sink.fragments)-1].Terminal {
		t.Fatal("stream was not terminated")
	}
	if len(memory.appended) != 1 || memory.appended[0].Content != "Here are some dishes" {
		t.Fatalf("partial turn not persisted: %+v", memory.appended)
	}
}

func TestRunStopsWritingAfterTransportDrop(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{failAfter: 1}

	emitted := 0
	res := a.Run(context.Background(), "anon:2", sink, func(ctx context.Context, emit contractx.Emitter) error {
		for _, p := range []string{"one ", "two ", "three"} {
			emitted++
			if err := emit(p); err != nil {
				return err
			}
		}
		return nil
	})

	if emitted != 2 {
		t.Fatalf("producer kept going after the drop: %d emits", emitted)
	}
	if !errors.Is(res.Err, contractx.ErrStreamFailure) {
		t.Fatalf("expected ErrStreamFailure, got %v", res.Err)
	}
	if len(sink.fragments) != 1 {
		t.Fatalf("nothing may be written after the drop, got %d fragments", len(sink.fragments))
	}
	if len(memory.appended) != 1 || memory.appended[0].Content != "one two " {
		t.Fatalf("unexpected persisted turn: %+v", memory.appended)
	}
}

func TestRunRecoversProducerPanic(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{}

	res := a.Run(context.Background(), "anon:3", sink, func(ctx context.Context, emit contractx.Emitter) error {
		_ = emit("partial")
		panic("boom")
	})

	if !errors.Is(res.Err, ErrProducerPanic) {
		t.Fatalf("expected ErrProducerPanic, got %v", res.Err)
	}
	if sink.body() != "partial"+ErrorMarker {
		t.Fatalf("body = %q", sink.body())
	}
	if len(memory.appended) != 1 {
		t.Fatalf("expected partial turn to be persisted")
	}
}

func TestRunPersistsAfterCallerContextIsCancelled(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	res := a.Run(ctx, "anon:4", sink, func(ctx context.Context, emit contractx.Emitter) error {
		_ = emit("half an answer")
		cancel()
		return ctx.Err()
	})

	if !res.Persisted || len(memory.appended) != 1 {
		t.Fatalf("turn not persisted after cancellation: %+v", res)
	}
}

func TestRunMemoryFailureDoesNotSurface(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{appendErr: errors.New("cache unavailable")}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{}

	res := a.Run(context.Background(), "anon:5", sink, produceAll("hello"))
	if res.Err != nil || res.Persisted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sink.body() != "hello" || !sink.fragments[len(sink.fragments)-1].Terminal {
		t.Fatalf("stream not completed: %+v", sink.fragments)
	}
}

func TestRunEmptyOutputIsNotPersisted(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	a := newTestAssembler(t, memory)
	sink := &recordingSink{}

	res := a.Run(context.Background(), "anon:6", sink, produceAll("", ""))
	if res.Persisted || len(memory.appended) != 0 {
		t.Fatalf("empty turn persisted: %+v", res)
	}
	if len(sink.fragments) != 1 || !sink.fragments[0].Terminal {
		t.Fatalf("expected only a terminal fragment, got %+v", sink.fragments)
	}
}
