package sqlgate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultQueryTimeout = 5 * time.Second

var _ contractx.QueryGate = (*Gate)(nil)

// Gate validates generated statements and runs the accepted ones.
type Gate struct {
	catalog   Catalog
	store     Store
	corrector *Corrector
	timeout   time.Duration
	tracer    trace.Tracer
}

type Option func(*Gate)

func WithCorrector(c *Corrector) Option {
	return func(g *Gate) {
		g.corrector = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func New(catalog Catalog, store Store, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("sqlgate store is required")
	}
	g := &Gate{
		catalog: catalog,
		store:   store,
		timeout: defaultQueryTimeout,
		tracer:  otel.Tracer("food-delivery-assistant/sqlgate"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Validate checks text against policy without touching the store.
func (g *Gate) Validate(text string, policy contractx.HandlerPolicy, identity string) (Verdict, error) {
	return Validate(g.catalog, text, policy, identity)
}

// Execute validates req and, when accepted, runs it. Rejections are returned
// as *contract.SafetyRejection; store errors as *contract.StoreFailure.
func (g *Gate) Execute(ctx context.Context, req contractx.QueryRequest) (contractx.QueryResult, error) {
	verdict, err := g.Validate(req.SQL, req.Policy, req.Identity)
	if err != nil {
		log.Info().
			Err(err).
			Str("caller", req.CallerKey).
			Str("domain", string(req.Policy.Domain)).
			Msg("sqlgate: statement rejected")
		return contractx.QueryResult{}, err
	}

	rows, err := g.Run(ctx, req.Policy, req.CallerKey, verdict)
	if err != nil {
		return contractx.QueryResult{SQL: verdict.SQL}, err
	}
	return contractx.QueryResult{SQL: verdict.SQL, Rows: rows}, nil
}

// Run executes an accepted verdict. The audit record is written before the
// store is reached.
func (g *Gate) Run(ctx context.Context, policy contractx.HandlerPolicy, callerKey string, verdict Verdict) ([]contractx.Row, error) {
	ctx, span := g.tracer.Start(ctx, "sqlgate.run")
	defer span.End()

	auditID := uuid.NewString()
	span.SetAttributes(
		attribute.String("sqlgate.audit_id", auditID),
		attribute.String("sqlgate.domain", string(policy.Domain)),
		attribute.StringSlice("sqlgate.relations", verdict.Relations),
		attribute.Int("sqlgate.args", len(verdict.Args)),
	)

	// The known-values lookup shares the statement deadline.
	queryCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.corrector.Correct(queryCtx, policy, &verdict)

	log.Info().
		Str("audit_id", auditID).
		Str("caller", callerKey).
		Str("domain", string(policy.Domain)).
		Str("sql", verdict.SQL).
		Int("args", len(verdict.Args)).
		Msg("sqlgate: executing statement")

	started := time.Now()
	rows, err := g.store.Query(queryCtx, verdict.SQL, verdict.Args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		log.Error().
			Err(err).
			Str("audit_id", auditID).
			Str("domain", string(policy.Domain)).
			Msg("sqlgate: statement failed")
		return nil, contractx.NewStoreFailure("query "+string(policy.Domain), err)
	}

	span.SetAttributes(attribute.Int("sqlgate.rows", len(rows)))
	log.Debug().
		Str("audit_id", auditID).
		Int("rows", len(rows)).
		Dur("elapsed", time.Since(started)).
		Msg("sqlgate: statement completed")
	return rows, nil
}
