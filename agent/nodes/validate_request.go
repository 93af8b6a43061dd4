package routernode

import (
	"errors"
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

var (
	ErrInvalidQuery   = errors.New("query is empty")
	ErrInvalidSession = errors.New("session key is empty")
	ErrInvalidEmitter = errors.New("emitter is nil")
)

type GraphInput struct {
	Request contractx.RouteRequest
	Emit    contractx.Emitter
}

// GraphOutput reports where a turn went. Err is the handler's error, carried
// out of the graph unchanged.
type GraphOutput struct {
	Route          contractx.Route
	ShortCircuited bool
	Fallback       bool
	Err            error
}

type GraphState struct {
	Req  contractx.RouteRequest
	Emit contractx.Emitter

	History []contractx.Turn

	Hint             contractx.Route
	IdentityCreation bool
	ShortCircuit     bool

	Route    contractx.Route
	FollowUp bool
	Fallback bool
}

func (s *GraphState) authenticated() bool {
	return s.Req.Identity != ""
}

func ValidateRequest(in GraphInput) (*GraphState, error) {
	if in.Emit == nil {
		return nil, ErrInvalidEmitter
	}

	query := strings.TrimSpace(in.Request.Query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	key := strings.TrimSpace(in.Request.CallerKey)
	if key == "" {
		return nil, ErrInvalidSession
	}

	req := in.Request
	req.Query = query
	req.CallerKey = key
	req.Identity = strings.TrimSpace(req.Identity)

	return &GraphState{
		Req:  req,
		Emit: in.Emit,
	}, nil
}
