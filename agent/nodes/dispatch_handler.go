package routernode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

// DispatchHandler runs the selected handler. A user-scoped selection for an
// anonymous caller still ends at the login prompt.
func DispatchHandler(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.Route == contractx.RouteAuthRequired || needsLogin(in, in.Route) {
		return ShortCircuit(in)
	}

	handler, ok := registry.Handler(in.Route)
	if !ok {
		log.Warn().
			Err(fmt.Errorf("%w: %q", contractx.ErrRoutingAmbiguity, in.Route)).
			Str("caller", in.Req.CallerKey).
			Msg("router: no handler for route")
		in.Route, in.Fallback = FallbackRoute, true
		handler, ok = registry.Handler(in.Route)
		if !ok {
			return GraphOutput{}, fmt.Errorf("%w: fallback handler is missing", contractx.ErrRoutingAmbiguity)
		}
	}

	err := handler.Handle(ctx, contractx.HandlerRequest{
		Route:     in.Route,
		Query:     in.Req.Query,
		Identity:  in.Req.Identity,
		CallerKey: in.Req.CallerKey,
		History:   in.History,
	}, in.Emit)

	return GraphOutput{
		Route:    in.Route,
		Fallback: in.Fallback,
		Err:      err,
	}, nil
}
