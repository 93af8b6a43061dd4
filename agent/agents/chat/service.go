package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/assembler"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"github.com/tanpawarit/food-delivery-assistant/agent/memory"
	nodex "github.com/tanpawarit/food-delivery-assistant/agent/nodes"
)

const maxRequestHistory = 8

var ErrInvalidQuery = errors.New("query is empty")

type Router interface {
	Route(ctx context.Context, req contractx.RouteRequest, emit contractx.Emitter) (nodex.GraphOutput, error)
}

// Service runs one chat request end to end: it records the user turn, routes
// the query and streams the answer through the assembler.
type Service struct {
	router    Router
	memory    contractx.MemoryStore
	assembler *assembler.Assembler
	now       func() time.Time
}

func New(router Router, memory contractx.MemoryStore, asm *assembler.Assembler) (*Service, error) {
	if router == nil {
		return nil, errors.New("router is required")
	}
	if memory == nil {
		return nil, errors.New("memory store is required")
	}
	if asm == nil {
		return nil, errors.New("assembler is required")
	}
	return &Service{
		router:    router,
		memory:    memory,
		assembler: asm,
		now:       time.Now,
	}, nil
}

// Chat streams the answer to req into sink. Only request validation errors
// are returned; everything after the first fragment is handled in-stream.
func (s *Service) Chat(ctx context.Context, req contractx.ChatRequest, sink assembler.Sink) (assembler.Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return assembler.Result{}, ErrInvalidQuery
	}
	identity := strings.TrimSpace(req.Identity)
	sessionKey := memory.SessionKey(identity, req.Origin)

	if err := s.memory.Append(ctx, sessionKey, contractx.Turn{
		Role:      contractx.RoleUser,
		Content:   query,
		Timestamp: s.now().UnixMilli(),
	}); err != nil {
		log.Warn().Err(err).Str("session", sessionKey).Msg("chat: record user turn failed")
	}

	routeReq := contractx.RouteRequest{
		Query:     query,
		Identity:  identity,
		CallerKey: sessionKey,
		History:   recentHistory(req.History),
	}

	res := s.assembler.Run(ctx, sessionKey, sink, func(ctx context.Context, emit contractx.Emitter) error {
		out, err := s.router.Route(ctx, routeReq, emit)
		if err == nil {
			log.Debug().
				Str("session", sessionKey).
				Str("route", string(out.Route)).
				Bool("short_circuit", out.ShortCircuited).
				Bool("fallback", out.Fallback).
				Msg("chat: routed")
		}
		return err
	})
	return res, nil
}

func recentHistory(turns []contractx.Turn) []contractx.Turn {
	valid := make([]contractx.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role.Valid() && strings.TrimSpace(t.Content) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) > maxRequestHistory {
		valid = valid[len(valid)-maxRequestHistory:]
	}
	return valid
}
