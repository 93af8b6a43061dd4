package contract

import "context"

type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
}

type Handler interface {
	Route() Route
	Handle(ctx context.Context, req HandlerRequest, emit Emitter) error
}

// Registry exposes the closed handler set. Handler returns false for any
// route outside it, including RouteAuthRequired.
type Registry interface {
	Classifier() Classifier
	Handler(route Route) (Handler, bool)
}

type MemoryStore interface {
	Append(ctx context.Context, sessionKey string, turn Turn) error
	Recent(ctx context.Context, sessionKey string) ([]Turn, error)
}

// QueryRequest is one generated statement submitted for gated execution.
type QueryRequest struct {
	SQL       string
	Identity  string
	CallerKey string
	Policy    HandlerPolicy
}

type QueryResult struct {
	SQL  string
	Rows []Row
}

// QueryGate is the only path from generated text to the data store.
type QueryGate interface {
	Execute(ctx context.Context, req QueryRequest) (QueryResult, error)
}
