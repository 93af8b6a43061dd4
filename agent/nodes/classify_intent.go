package routernode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

// FallbackRoute receives turns whose classification is unusable.
const FallbackRoute = contractx.RouteRestaurants

// ClassifyIntent asks the classifier for a route and reconciles it with the
// keyword hint. Undeclared or failed classifications fall back to
// FallbackRoute unless the hint is user-scoped.
func ClassifyIntent(
	ctx context.Context,
	in *GraphState,
	classifier contractx.Classifier,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is nil", contractx.ErrValidation)
	}

	resp, err := classifier.Classify(ctx, contractx.ClassifyRequest{
		Query:    in.Req.Query,
		Identity: in.authenticated(),
		History:  in.History,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("caller", in.Req.CallerKey).
			Msg("router: classification failed")
		in.Route, in.Fallback = fallback(in.Hint), true
		return in, nil
	}

	route, ok := contractx.ParseRoute(resp.Route)
	if ok && route == contractx.RouteAuthRequired && in.authenticated() {
		ok = false
	}
	if !ok {
		log.Warn().
			Err(fmt.Errorf("%w: %q", contractx.ErrRoutingAmbiguity, resp.Route)).
			Str("caller", in.Req.CallerKey).
			Str("hint", string(in.Hint)).
			Msg("router: undeclared route selected")
		in.Route, in.Fallback = fallback(in.Hint), true
		return in, nil
	}

	if in.Hint.Scope() == contractx.ScopeUser && route.Scope() == contractx.ScopeGeneral {
		log.Debug().
			Str("model", string(route)).
			Str("hint", string(in.Hint)).
			Msg("router: user-scoped hint overrides general route")
		route = in.Hint
	}

	in.Route = route
	in.FollowUp = resp.FollowUp
	return in, nil
}

func fallback(hint contractx.Route) contractx.Route {
	if hint.Scope() == contractx.ScopeUser {
		return hint
	}
	return FallbackRoute
}
