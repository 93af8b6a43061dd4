package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

// ErrorMarker is written after partial output when a turn fails while the
// stream is still writable.
const ErrorMarker = "\n[Error generating response]"

const defaultPersistTimeout = 3 * time.Second

var ErrProducerPanic = errors.New("response producer panicked")

// Sink is the caller-facing side of a stream. A Send error means the caller
// is gone.
type Sink interface {
	Send(fragment contractx.Fragment) error
}

type SinkFunc func(fragment contractx.Fragment) error

func (f SinkFunc) Send(fragment contractx.Fragment) error {
	return f(fragment)
}

// Producer writes one turn's text through emit.
type Producer func(ctx context.Context, emit contractx.Emitter) error

// Result describes a finished turn. Err is the producer or transport failure,
// already handled; it is reported for logging only.
type Result struct {
	Text      string
	Fragments int
	Partial   bool
	Persisted bool
	Err       error
}

type Assembler struct {
	memory         contractx.MemoryStore
	now            func() time.Time
	persistTimeout time.Duration
}

type Option func(*Assembler)

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

func WithPersistTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.persistTimeout = d
		}
	}
}

func New(memory contractx.MemoryStore, opts ...Option) (*Assembler, error) {
	if memory == nil {
		return nil, errors.New("memory store is required")
	}
	a := &Assembler{
		memory:         memory,
		now:            time.Now,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Run streams produce's output to sink fragment by fragment and records the
// resulting assistant turn under sessionKey. It never returns an error and
// never lets a producer panic escape.
func (a *Assembler) Run(ctx context.Context, sessionKey string, sink Sink, produce Producer) Result {
	s := &stream{sink: sink, writable: true}

	err := runProducer(ctx, produce, s.emit)
	if err != nil && s.writable {
		s.send(contractx.Fragment{Delta: ErrorMarker})
	}
	if s.writable {
		s.send(contractx.Fragment{Terminal: true})
	}

	res := Result{
		Text:      s.text.String(),
		Fragments: s.ordinal,
		Partial:   err != nil,
		Err:       err,
	}
	if res.Text != "" {
		res.Persisted = a.persist(ctx, sessionKey, res)
	}

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("session", sessionKey).
		Int("fragments", res.Fragments).
		Int("chars", len(res.Text)).
		Bool("partial", res.Partial).
		Bool("persisted", res.Persisted).
		Msg("assembler: turn finished")
	return res
}

func (a *Assembler) persist(ctx context.Context, sessionKey string, res Result) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.persistTimeout)
	defer cancel()

	err := a.memory.Append(ctx, sessionKey, contractx.Turn{
		Role:      contractx.RoleAssistant,
		Content:   res.Text,
		Timestamp: a.now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("session", sessionKey).Bool("partial", res.Partial).Msg("assembler: persist turn failed")
		return false
	}
	return true
}

type stream struct {
	sink     Sink
	ordinal  int
	writable bool
	text     strings.Builder
}

func (s *stream) emit(delta string) error {
	if delta == "" {
		return nil
	}
	if !s.writable {
		return fmt.Errorf("%w: stream is closed", contractx.ErrStreamFailure)
	}
	s.text.WriteString(delta)
	if err := s.send(contractx.Fragment{Delta: delta}); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrStreamFailure, err)
	}
	return nil
}

func (s *stream) send(f contractx.Fragment) error {
	s.ordinal++
	f.Ordinal = s.ordinal
	if err := s.sink.Send(f); err != nil {
		s.writable = false
		return err
	}
	return nil
}

func runProducer(ctx context.Context, produce Producer, emit contractx.Emitter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("assembler: producer panicked")
			err = fmt.Errorf("%w: %v", ErrProducerPanic, r)
		}
	}()
	if produce == nil {
		return errors.New("producer is nil")
	}
	return produce(ctx, emit)
}
