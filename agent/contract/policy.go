package contract

import "strings"

// OrderTerm is one default ordering key. Column is unqualified and is
// resolved against the statement's relations at validation time.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Anchor ties a relation to the relation it belongs to: rows of the anchored
// relation are only visible through Relation, joined on Column = Relation.Key.
type Anchor struct {
	Relation string
	Column   string
	Key      string
}

// HandlerPolicy is the enforced policy of one domain handler.
type HandlerPolicy struct {
	Domain Route

	// AllowedRelations is the set of relations a statement may reference.
	AllowedRelations map[string]struct{}
	// DeniedColumns holds "relation.column" or bare "column" entries.
	DeniedColumns map[string]struct{}
	// Anchors maps a relation to the relation that must appear alongside it.
	// The link predicate is always enforced, whatever the JOIN condition says.
	Anchors map[string]Anchor
	// AllowedValues restricts literals compared to "relation.column".
	AllowedValues map[string][]string
	// IdentityScope maps relation -> column that must equal the caller identity.
	IdentityScope map[string]string
	// RequireIdentity rejects statements when no identity is present.
	RequireIdentity bool

	DefaultLimit int
	MaxLimit     int
	DefaultOrder []OrderTerm
	// AlwaysOrder applies DefaultOrder even without ranking language.
	AlwaysOrder bool

	// FuzzyColumns are "relation.column" entries whose filter values are
	// corrected against known values within FuzzyTolerance edits.
	FuzzyColumns   map[string]struct{}
	FuzzyTolerance int

	// Fixed texts.
	SignInMessage string
	EmptyMessage  string
	Apology       string
}

func (p HandlerPolicy) AllowsRelation(rel string) bool {
	_, ok := p.AllowedRelations[strings.ToLower(rel)]
	return ok
}

func (p HandlerPolicy) DeniesColumn(rel, col string) bool {
	rel, col = strings.ToLower(rel), strings.ToLower(col)
	if _, ok := p.DeniedColumns[col]; ok {
		return true
	}
	_, ok := p.DeniedColumns[rel+"."+col]
	return ok
}

// AllowedValue reports whether value is acceptable for rel.col and returns
// its canonical spelling. Columns without a restriction accept anything.
func (p HandlerPolicy) AllowedValue(rel, col, value string) (string, bool) {
	allowed, ok := p.AllowedValues[strings.ToLower(rel)+"."+strings.ToLower(col)]
	if !ok {
		return value, true
	}
	for _, v := range allowed {
		if strings.EqualFold(v, strings.TrimSpace(value)) {
			return v, true
		}
	}
	return "", false
}

// RestrictsValues reports whether rel.col carries an allowed-value list.
func (p HandlerPolicy) RestrictsValues(rel, col string) bool {
	_, ok := p.AllowedValues[strings.ToLower(rel)+"."+strings.ToLower(col)]
	return ok
}

func (p HandlerPolicy) IsFuzzy(rel, col string) bool {
	_, ok := p.FuzzyColumns[strings.ToLower(rel)+"."+strings.ToLower(col)]
	return ok
}

// Clone returns a copy whose slices can be modified independently. Maps are
// shared and must be treated as read-only.
func (p HandlerPolicy) Clone() HandlerPolicy {
	cp := p
	cp.DefaultOrder = append([]OrderTerm(nil), p.DefaultOrder...)
	return cp
}

// Set builds a string set.
func Set(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[strings.ToLower(v)] = struct{}{}
	}
	return out
}
