package routernode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"github.com/tanpawarit/food-delivery-assistant/agent/policy"
)

// GuardIdentity derives the keyword hint and decides whether the turn stops
// at the login prompt before any model or store call.
func GuardIdentity(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Hint = hintFor(in.Req.Query, in.History)
	in.IdentityCreation = policy.IsIdentityCreation(in.Req.Query)
	in.ShortCircuit = needsLogin(in, in.Hint)
	if in.ShortCircuit {
		in.Route = contractx.RouteAuthRequired
		log.Info().
			Str("caller", in.Req.CallerKey).
			Str("hint", string(in.Hint)).
			Msg("router: user-scoped request without identity")
	}
	return in, nil
}

func needsLogin(in *GraphState, route contractx.Route) bool {
	if in.authenticated() || in.IdentityCreation || route == "" {
		return false
	}
	return route.Scope() == contractx.ScopeUser
}

// ShortCircuit answers with the fixed login prompt.
func ShortCircuit(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	out := GraphOutput{Route: contractx.RouteAuthRequired, ShortCircuited: true}
	if err := in.Emit(contractx.LoginRequiredMessage); err != nil {
		out.Err = fmt.Errorf("%w: %v", contractx.ErrStreamFailure, err)
	}
	return out, nil
}
