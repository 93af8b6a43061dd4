package sqlgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

const (
	defaultKnownValuesSize = 128
	defaultKnownValuesTTL  = 10 * time.Minute
	knownValuesLimit       = 1000
)

// Corrector rewrites misspelled filter values to the closest value known to
// exist in the store.
type Corrector struct {
	store   Store
	catalog Catalog
	known   *expirable.LRU[string, []string]
}

func NewCorrector(store Store, catalog Catalog, size int, ttl time.Duration) *Corrector {
	if size <= 0 {
		size = defaultKnownValuesSize
	}
	if ttl <= 0 {
		ttl = defaultKnownValuesTTL
	}
	return &Corrector{
		store:   store,
		catalog: catalog,
		known:   expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

// Correct adjusts string arguments of v bound against fuzzy columns of
// policy. Lookup failures leave the argument untouched.
func (c *Corrector) Correct(ctx context.Context, policy contractx.HandlerPolicy, v *Verdict) {
	if c == nil || policy.FuzzyTolerance <= 0 {
		return
	}
	for _, p := range v.Params {
		if p.Relation == "" || !policy.IsFuzzy(p.Relation, p.Column) {
			continue
		}
		raw, ok := v.Args[p.Index].(string)
		if !ok {
			continue
		}
		prefix, term, suffix := splitPattern(raw)
		if strings.TrimSpace(term) == "" {
			continue
		}

		known, err := c.knownValues(ctx, p.Relation, p.Column)
		if err != nil {
			log.Warn().Err(err).
				Str("relation", p.Relation).
				Str("column", p.Column).
				Msg("sqlgate: known values lookup failed")
			continue
		}

		corrected, changed := closest(term, known, policy.FuzzyTolerance)
		if !changed {
			continue
		}
		v.Args[p.Index] = prefix + corrected + suffix
		log.Debug().
			Str("relation", p.Relation).
			Str("column", p.Column).
			Str("from", term).
			Str("to", corrected).
			Msg("sqlgate: filter value corrected")
	}
}

func (c *Corrector) knownValues(ctx context.Context, rel, col string) ([]string, error) {
	if !c.catalog.HasColumn(rel, col) {
		return nil, fmt.Errorf("unknown column %s.%s", rel, col)
	}
	key := rel + "." + col
	if values, ok := c.known.Get(key); ok {
		return values, nil
	}

	// identifiers are catalog entries, never caller text
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d", col, rel, col, knownValuesLimit)
	rows, err := c.store.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if val, ok := row[col]; ok && val != nil {
			values = append(values, fmt.Sprint(val))
		}
	}
	c.known.Add(key, values)
	return values, nil
}

// closest returns the known value or word nearest to term within tolerance.
// A term already contained in some known value is kept as is.
func closest(term string, known []string, tolerance int) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(term))
	for _, k := range known {
		if strings.Contains(strings.ToLower(k), needle) {
			return term, false
		}
	}

	best, bestDist := "", tolerance+1
	consider := func(candidate string) {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(candidate))
		if d < bestDist {
			best, bestDist = candidate, d
		}
	}
	for _, k := range known {
		consider(k)
		if words := strings.Fields(k); len(words) > 1 {
			for _, w := range words {
				consider(w)
			}
		}
	}
	if best == "" {
		return term, false
	}
	return best, true
}
