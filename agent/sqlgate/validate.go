package sqlgate

import (
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

// Verdict is an accepted statement: sanitized text with every value bound.
type Verdict struct {
	SQL       string
	Args      []any
	Params    []ParamRef
	Relations []string
	Limit     int64
}

// ParamRef records which column a bound argument is compared against.
type ParamRef struct {
	Index    int
	Relation string
	Column   string
	Op       string
}

// Validate parses text and checks it against policy. Checks run in a fixed
// order and the first violation is returned as a *contract.SafetyRejection.
func Validate(catalog Catalog, text string, policy contractx.HandlerPolicy, identity string) (Verdict, error) {
	stmt, err := Parse(text)
	if err != nil {
		return Verdict{}, err
	}

	v := &validator{
		catalog:  catalog,
		policy:   policy,
		identity: strings.TrimSpace(identity),
		stmt:     stmt,
	}
	checks := []func() error{
		v.checkRelations,
		v.checkColumns,
		v.checkAllowedValues,
		v.checkIdentity,
		v.applyAnchors,
		v.applyLimit,
		v.applyOrder,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return Verdict{}, err
		}
	}

	verdict := render(stmt)
	verdict.Relations = v.relations()
	if stmt.Limit != nil {
		verdict.Limit = *stmt.Limit
	}
	return verdict, nil
}

type validator struct {
	catalog  Catalog
	policy   contractx.HandlerPolicy
	identity string
	stmt     *Statement

	// scope maps a reference name (alias or relation) to its relation.
	scope   map[string]string
	outputs map[string]struct{}
	// restricted is set once WHERE carries a policy predicate.
	restricted bool
}

func (v *validator) checkRelations() error {
	v.scope = make(map[string]string)
	present := make(map[string]struct{})
	for _, t := range v.stmt.tables() {
		rel := strings.ToLower(t.Name)
		if !v.catalog.HasRelation(rel) {
			return contractx.Reject(contractx.RuleRelation, "unknown relation %s", rel)
		}
		if !v.policy.AllowsRelation(rel) {
			return contractx.Reject(contractx.RuleRelation, "relation %s is not allowed for %s", rel, v.policy.Domain)
		}
		ref := t.Ref()
		if _, dup := v.scope[ref]; dup {
			return contractx.Reject(contractx.RuleRelation, "reference %s is used twice", ref)
		}
		v.scope[ref] = rel
		present[rel] = struct{}{}
	}
	for rel := range present {
		anchor, ok := v.policy.Anchors[rel]
		if !ok {
			continue
		}
		if _, ok := present[anchor.Relation]; !ok {
			return contractx.Reject(contractx.RuleRelation, "relation %s must be joined with %s", rel, anchor.Relation)
		}
	}
	return nil
}

func (v *validator) checkColumns() error {
	v.outputs = make(map[string]struct{})
	for _, it := range v.stmt.Items {
		if it.Alias != "" {
			v.outputs[it.Alias] = struct{}{}
		}
	}

	for _, it := range v.stmt.Items {
		if !it.Star {
			continue
		}
		rels := v.relations()
		if it.Table != "" {
			rel, ok := v.scope[it.Table]
			if !ok {
				return contractx.Reject(contractx.RuleRelation, "unknown reference %s", it.Table)
			}
			rels = []string{rel}
		}
		for _, rel := range rels {
			for _, col := range v.catalog.Columns(rel) {
				if v.policy.DeniesColumn(rel, col) {
					return contractx.Reject(contractx.RuleDeniedColumn, "wildcard projection exposes %s.%s", rel, col)
				}
			}
		}
	}

	// ORDER BY names resolve to output columns first. GROUP BY names resolve
	// to input columns first, so an alias there only counts when no relation
	// in scope has a column of that name.
	for _, e := range v.stmt.GroupBy {
		if ref, ok := e.(*ColumnRef); ok && !v.inputColumn(ref.Column) {
			v.markOutput(e)
		}
	}
	for _, o := range v.stmt.OrderBy {
		v.markOutput(o.Expr)
	}

	var failure error
	for _, e := range v.stmt.exprs() {
		walk(e, func(n Expr) {
			ref, ok := n.(*ColumnRef)
			if !ok || failure != nil || ref.alias {
				return
			}
			failure = v.resolve(ref)
		})
		if failure != nil {
			return failure
		}
	}
	return nil
}

func (v *validator) markOutput(e Expr) {
	ref, ok := e.(*ColumnRef)
	if !ok || ref.Table != "" {
		return
	}
	if _, ok := v.outputs[ref.Column]; ok {
		ref.alias = true
	}
}

func (v *validator) inputColumn(col string) bool {
	col = strings.ToLower(col)
	for _, rel := range v.scope {
		if v.catalog.HasColumn(rel, col) {
			return true
		}
	}
	return false
}

func (v *validator) resolve(ref *ColumnRef) error {
	col := strings.ToLower(ref.Column)
	if ref.Table != "" {
		rel, ok := v.scope[ref.Table]
		if !ok {
			return contractx.Reject(contractx.RuleRelation, "unknown reference %s", ref.Table)
		}
		if !v.catalog.HasColumn(rel, col) {
			return contractx.Reject(contractx.RuleDeniedColumn, "unknown column %s.%s", rel, col)
		}
		if v.policy.DeniesColumn(rel, col) {
			return contractx.Reject(contractx.RuleDeniedColumn, "column %s.%s is denied", rel, col)
		}
		ref.relation = rel
		return nil
	}

	var matches []string
	for _, t := range v.stmt.tables() {
		rel := v.scope[t.Ref()]
		if v.catalog.HasColumn(rel, col) {
			matches = append(matches, t.Ref())
		}
	}
	for _, m := range matches {
		if rel := v.scope[m]; v.policy.DeniesColumn(rel, col) {
			return contractx.Reject(contractx.RuleDeniedColumn, "column %s.%s is denied", rel, col)
		}
	}
	switch len(matches) {
	case 0:
		return contractx.Reject(contractx.RuleDeniedColumn, "unknown column %s", col)
	case 1:
		ref.relation = v.scope[matches[0]]
		ref.Table = matches[0]
		return nil
	default:
		return contractx.Reject(contractx.RuleDeniedColumn, "column %s is ambiguous", col)
	}
}

// comparisons calls fn for every column compared to a literal value.
func (v *validator) comparisons(fn func(ref *ColumnRef, op string, lit *Literal) error) error {
	var failure error
	visit := func(ref *ColumnRef, op string, lit *Literal) {
		if failure == nil && ref != nil && lit != nil && !ref.alias {
			failure = fn(ref, op, lit)
		}
	}
	for _, e := range v.stmt.exprs() {
		walk(e, func(n Expr) {
			switch x := n.(type) {
			case *BinaryExpr:
				if !isEquality(x.Op) {
					return
				}
				visit(columnOf(x.Left), x.Op, literalOf(x.Right))
				visit(columnOf(x.Right), x.Op, literalOf(x.Left))
			case *InExpr:
				ref := columnOf(x.Expr)
				for _, item := range x.List {
					visit(ref, "IN", literalOf(item))
				}
			case *LikeExpr:
				visit(columnOf(x.Expr), x.Op, literalOf(x.Pattern))
			}
		})
		if failure != nil {
			return failure
		}
	}
	return nil
}

func (v *validator) checkAllowedValues() error {
	if err := v.checkRestrictedUse(); err != nil {
		return err
	}
	return v.comparisons(func(ref *ColumnRef, op string, lit *Literal) error {
		if op == "LIKE" || op == "ILIKE" {
			prefix, term, suffix := splitPattern(lit.Value)
			canonical, ok := v.policy.AllowedValue(ref.relation, ref.Column, term)
			if !ok {
				return contractx.Reject(contractx.RuleAllowedValue, "value %q is not allowed for %s.%s", lit.Value, ref.relation, ref.Column)
			}
			lit.Value = prefix + canonical + suffix
			return nil
		}
		canonical, ok := v.policy.AllowedValue(ref.relation, ref.Column, lit.Value)
		if !ok {
			return contractx.Reject(contractx.RuleAllowedValue, "value %q is not allowed for %s.%s", lit.Value, ref.relation, ref.Column)
		}
		lit.Value = canonical
		return nil
	})
}

// checkRestrictedUse rejects any use of a value-restricted column other than
// a plain projection, grouping or ordering key, or a direct comparison with
// literals.
func (v *validator) checkRestrictedUse() error {
	direct := make(map[*ColumnRef]struct{})
	mark := func(e Expr) {
		if ref := columnOf(e); ref != nil {
			direct[ref] = struct{}{}
		}
	}
	for _, it := range v.stmt.Items {
		mark(it.Expr)
	}
	for _, e := range v.stmt.GroupBy {
		mark(e)
	}
	for _, o := range v.stmt.OrderBy {
		mark(o.Expr)
	}
	for _, e := range v.stmt.exprs() {
		walk(e, func(n Expr) {
			switch x := n.(type) {
			case *BinaryExpr:
				if !isEquality(x.Op) {
					return
				}
				if literalOf(x.Right) != nil {
					mark(x.Left)
				}
				if literalOf(x.Left) != nil {
					mark(x.Right)
				}
			case *InExpr:
				for _, item := range x.List {
					if literalOf(item) == nil {
						return
					}
				}
				mark(x.Expr)
			case *LikeExpr:
				if literalOf(x.Pattern) != nil {
					mark(x.Expr)
				}
			}
		})
	}

	var failure error
	for _, e := range v.stmt.exprs() {
		walk(e, func(n Expr) {
			ref, ok := n.(*ColumnRef)
			if !ok || failure != nil || ref.alias || !v.policy.RestrictsValues(ref.relation, ref.Column) {
				return
			}
			if _, ok := direct[ref]; !ok {
				failure = contractx.Reject(contractx.RuleAllowedValue, "%s.%s may only be compared directly with allowed values", ref.relation, ref.Column)
			}
		})
		if failure != nil {
			return failure
		}
	}
	return nil
}

func (v *validator) checkIdentity() error {
	if v.policy.RequireIdentity && v.identity == "" {
		return contractx.Reject(contractx.RuleIdentity, "%s requires an authenticated caller", v.policy.Domain)
	}

	err := v.comparisons(func(ref *ColumnRef, op string, lit *Literal) error {
		col, scoped := v.policy.IdentityScope[ref.relation]
		if !scoped || !strings.EqualFold(col, ref.Column) {
			return nil
		}
		if v.identity == "" || strings.TrimSpace(lit.Value) != v.identity {
			return contractx.Reject(contractx.RuleIdentity, "filter on %s.%s does not match the caller", ref.relation, ref.Column)
		}
		return nil
	})
	if err != nil || v.identity == "" {
		return err
	}

	for _, t := range v.stmt.tables() {
		rel := v.scope[t.Ref()]
		col, scoped := v.policy.IdentityScope[rel]
		if !scoped {
			continue
		}
		v.restrict(&BinaryExpr{
			Op:    "=",
			Left:  &ColumnRef{Table: t.Ref(), Column: col, relation: rel},
			Right: &Literal{Kind: LitString, Value: v.identity},
		})
	}
	return nil
}

// applyAnchors ties every anchored relation to its owner in WHERE. JOIN
// conditions are not trusted for the link.
func (v *validator) applyAnchors() error {
	for _, t := range v.stmt.tables() {
		rel := v.scope[t.Ref()]
		anchor, ok := v.policy.Anchors[rel]
		if !ok {
			continue
		}
		owner, ok := v.firstRef(anchor.Relation)
		if !ok {
			return contractx.Reject(contractx.RuleRelation, "relation %s must be joined with %s", rel, anchor.Relation)
		}
		v.restrict(&BinaryExpr{
			Op:    "=",
			Left:  &ColumnRef{Table: t.Ref(), Column: anchor.Column, relation: rel},
			Right: &ColumnRef{Table: owner, Column: anchor.Key, relation: anchor.Relation},
		})
	}
	return nil
}

// restrict ANDs cond onto WHERE.
func (v *validator) restrict(cond Expr) {
	switch {
	case v.stmt.Where == nil:
		v.stmt.Where = cond
	case v.restricted:
		v.stmt.Where = &BinaryExpr{Op: "AND", Left: v.stmt.Where, Right: cond}
	default:
		v.stmt.Where = &BinaryExpr{Op: "AND", Left: &ParenExpr{Expr: v.stmt.Where}, Right: cond}
	}
	v.restricted = true
}

func (v *validator) firstRef(rel string) (string, bool) {
	for _, t := range v.stmt.tables() {
		if v.scope[t.Ref()] == rel {
			return t.Ref(), true
		}
	}
	return "", false
}

func (v *validator) applyLimit() error {
	if v.stmt.Limit == nil {
		if v.policy.DefaultLimit > 0 {
			n := int64(v.policy.DefaultLimit)
			v.stmt.Limit = &n
		}
		return nil
	}
	if v.policy.MaxLimit > 0 && *v.stmt.Limit > int64(v.policy.MaxLimit) {
		n := int64(v.policy.MaxLimit)
		v.stmt.Limit = &n
	}
	return nil
}

func (v *validator) applyOrder() error {
	if !v.policy.AlwaysOrder || len(v.policy.DefaultOrder) == 0 {
		return nil
	}
	if len(v.stmt.OrderBy) > 0 || len(v.stmt.GroupBy) > 0 || v.stmt.Distinct || hasAggregate(v.stmt) {
		return nil
	}
	for _, term := range v.policy.DefaultOrder {
		ref := v.findColumn(term.Column)
		if ref == nil {
			continue
		}
		v.stmt.OrderBy = append(v.stmt.OrderBy, OrderItem{Expr: ref, Desc: term.Desc, Nulls: nullsFor(term.Desc)})
	}
	return nil
}

// findColumn resolves an unqualified column against the statement's
// relations in FROM/JOIN order, skipping denied columns.
func (v *validator) findColumn(col string) *ColumnRef {
	col = strings.ToLower(col)
	for _, t := range v.stmt.tables() {
		rel := v.scope[t.Ref()]
		if v.catalog.HasColumn(rel, col) && !v.policy.DeniesColumn(rel, col) {
			return &ColumnRef{Table: t.Ref(), Column: col, relation: rel}
		}
	}
	return nil
}

func (v *validator) relations() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range v.stmt.tables() {
		rel := v.scope[t.Ref()]
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}
	return out
}

func hasAggregate(stmt *Statement) bool {
	found := false
	for _, it := range stmt.Items {
		walk(it.Expr, func(n Expr) {
			if call, ok := n.(*FuncCall); ok {
				switch call.Name {
				case "count", "sum", "avg", "min", "max":
					found = true
				}
			}
		})
	}
	return found
}

func nullsFor(desc bool) string {
	if desc {
		return "LAST"
	}
	return ""
}

func isEquality(op string) bool {
	switch op {
	case "=", "<>", "!=":
		return true
	default:
		return false
	}
}

func columnOf(e Expr) *ColumnRef {
	for {
		switch x := e.(type) {
		case *ParenExpr:
			e = x.Expr
		case *ColumnRef:
			return x
		default:
			return nil
		}
	}
}

func literalOf(e Expr) *Literal {
	for {
		switch x := e.(type) {
		case *ParenExpr:
			e = x.Expr
		case *Literal:
			return x
		default:
			return nil
		}
	}
}

// splitPattern separates LIKE wildcards at the edges of a pattern.
func splitPattern(pattern string) (prefix, term, suffix string) {
	start := 0
	for start < len(pattern) && (pattern[start] == '%' || pattern[start] == '_') {
		start++
	}
	end := len(pattern)
	for end > start && (pattern[end-1] == '%' || pattern[end-1] == '_') {
		end--
	}
	return pattern[:start], pattern[start:end], pattern[end:]
}
