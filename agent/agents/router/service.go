package router

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	nodex "github.com/tanpawarit/food-delivery-assistant/agent/nodes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidQuery   = nodex.ErrInvalidQuery
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrInvalidEmitter = nodex.ErrInvalidEmitter
)

// Router classifies a turn and dispatches it to exactly one handler.
type Router struct {
	registry contractx.Registry
	memory   contractx.MemoryStore

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
	tracer      trace.Tracer
}

// New builds a Router. A nil memory store makes the router rely on the
// history carried by each request.
func New(registry contractx.Registry, memory contractx.MemoryStore) (*Router, error) {
	if registry == nil {
		return nil, errors.New("handler registry is required")
	}

	r := &Router{
		registry: registry,
		memory:   memory,
		tracer:   otel.Tracer("food-delivery-assistant/router"),
	}

	graphRunner, err := r.compileRouteGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.graphRunner = graphRunner

	return r, nil
}

// Route answers req through emit and reports the route taken.
func (r *Router) Route(ctx context.Context, req contractx.RouteRequest, emit contractx.Emitter) (nodex.GraphOutput, error) {
	ctx, span := r.tracer.Start(ctx, "router.route")
	defer span.End()

	out, err := r.graphRunner.Invoke(ctx, nodex.GraphInput{
		Request: req,
		Emit:    emit,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		return nodex.GraphOutput{}, err
	}

	span.SetAttributes(
		attribute.String("router.route", string(out.Route)),
		attribute.Bool("router.short_circuit", out.ShortCircuited),
		attribute.Bool("router.fallback", out.Fallback),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "handler failed")
		return out, out.Err
	}
	return out, nil
}
