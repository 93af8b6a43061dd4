package routernode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

const maxHistoryTurns = 8

// ReadHistory loads the recent turns of the session. The stored copy of the
// turn being answered is dropped; caller-supplied history is used when the
// memory store cannot be read.
func ReadHistory(
	ctx context.Context,
	in *GraphState,
	memory contractx.MemoryStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	history := in.Req.History
	if memory != nil {
		recent, err := memory.Recent(ctx, in.Req.CallerKey)
		if err != nil {
			log.Warn().
				Err(err).
				Str("session", in.Req.CallerKey).
				Msg("router: memory read failed, using request history")
		} else {
			history = recent
		}
	}

	in.History = excludeInFlight(history, in.Req.Query)
	return in, nil
}

func excludeInFlight(history []contractx.Turn, query string) []contractx.Turn {
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == contractx.RoleUser && strings.TrimSpace(last.Content) == query {
			history = history[:n-1]
		}
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	return append([]contractx.Turn(nil), history...)
}
