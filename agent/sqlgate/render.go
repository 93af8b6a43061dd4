package sqlgate

import (
	"strconv"
	"strings"
)

// render writes the statement back out. Identifiers come from the validated
// tree; every literal becomes a positional bind parameter.
func render(stmt *Statement) Verdict {
	r := &renderer{}
	r.statement(stmt)
	return Verdict{SQL: r.b.String(), Args: r.args, Params: r.params}
}

type renderer struct {
	b      strings.Builder
	args   []any
	params []ParamRef
}

func (r *renderer) statement(s *Statement) {
	r.write("SELECT ")
	if s.Distinct {
		r.write("DISTINCT ")
	}
	for i, it := range s.Items {
		if i > 0 {
			r.write(", ")
		}
		switch {
		case it.Star && it.Table != "":
			r.write(it.Table + ".*")
		case it.Star:
			r.write("*")
		default:
			r.expr(it.Expr)
			if it.Alias != "" {
				r.write(" AS " + it.Alias)
			}
		}
	}

	r.write(" FROM ")
	r.table(s.From)
	for _, j := range s.Joins {
		r.write(" " + j.Kind + " ")
		r.table(j.Table)
		r.write(" ON ")
		r.expr(j.On)
	}

	if s.Where != nil {
		r.write(" WHERE ")
		r.expr(s.Where)
	}
	if len(s.GroupBy) > 0 {
		r.write(" GROUP BY ")
		for i, e := range s.GroupBy {
			if i > 0 {
				r.write(", ")
			}
			r.positional(e)
		}
	}
	if s.Having != nil {
		r.write(" HAVING ")
		r.expr(s.Having)
	}
	if len(s.OrderBy) > 0 {
		r.write(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				r.write(", ")
			}
			r.positional(o.Expr)
			if o.Desc {
				r.write(" DESC")
			}
			if o.Nulls != "" {
				r.write(" NULLS " + o.Nulls)
			}
		}
	}
	if s.Limit != nil {
		r.write(" LIMIT ")
		r.bind(*s.Limit, ParamRef{Op: "LIMIT"})
	}
	if s.Offset != nil {
		r.write(" OFFSET ")
		r.bind(*s.Offset, ParamRef{Op: "OFFSET"})
	}
}

func (r *renderer) table(t TableRef) {
	r.write(t.Name)
	if t.Alias != "" {
		r.write(" AS " + t.Alias)
	}
}

// positional renders GROUP BY / ORDER BY keys. A bare integer there is a
// column position, not a value.
func (r *renderer) positional(e Expr) {
	if lit, ok := e.(*Literal); ok && lit.Kind == LitNumber {
		if n, err := strconv.Atoi(lit.Value); err == nil && n > 0 {
			r.write(strconv.Itoa(n))
			return
		}
	}
	r.expr(e)
}

func (r *renderer) expr(e Expr) {
	switch x := e.(type) {
	case *ColumnRef:
		r.column(x)
	case *Literal:
		r.literal(x, ParamRef{})
	case *Constant:
		r.write(x.Name)
	case *ParenExpr:
		r.write("(")
		r.expr(x.Expr)
		r.write(")")
	case *UnaryExpr:
		if x.Op == "NOT" {
			r.write("NOT ")
			r.expr(x.Expr)
			return
		}
		// parenthesised so nested negation never renders as "--"
		r.write(x.Op + "(")
		r.expr(x.Expr)
		r.write(")")
	case *BinaryExpr:
		r.operand(x.Left, x.Right, x.Op)
		r.write(" " + x.Op + " ")
		r.operand(x.Right, x.Left, x.Op)
	case *FuncCall:
		r.write(x.Name + "(")
		if x.Star {
			r.write("*")
		}
		if x.Distinct {
			r.write("DISTINCT ")
		}
		for i, a := range x.Args {
			if i > 0 {
				r.write(", ")
			}
			r.expr(a)
		}
		r.write(")")
	case *InExpr:
		r.expr(x.Expr)
		if x.Not {
			r.write(" NOT")
		}
		r.write(" IN (")
		for i, item := range x.List {
			if i > 0 {
				r.write(", ")
			}
			r.operand(item, x.Expr, "IN")
		}
		r.write(")")
	case *BetweenExpr:
		r.expr(x.Expr)
		if x.Not {
			r.write(" NOT")
		}
		r.write(" BETWEEN ")
		r.operand(x.Low, x.Expr, "BETWEEN")
		r.write(" AND ")
		r.operand(x.High, x.Expr, "BETWEEN")
	case *IsNullExpr:
		r.expr(x.Expr)
		if x.Not {
			r.write(" IS NOT NULL")
		} else {
			r.write(" IS NULL")
		}
	case *LikeExpr:
		r.expr(x.Expr)
		if x.Not {
			r.write(" NOT")
		}
		r.write(" " + x.Op + " ")
		r.operand(x.Pattern, x.Expr, x.Op)
	}
}

// operand renders e, recording the column it is compared against when e is
// a literal and other is a column.
func (r *renderer) operand(e, other Expr, op string) {
	lit := literalOf(e)
	ref := columnOf(other)
	if lit == nil || ref == nil || ref.alias {
		r.expr(e)
		return
	}
	parens := 0
	for {
		p, ok := e.(*ParenExpr)
		if !ok {
			break
		}
		r.write("(")
		parens++
		e = p.Expr
	}
	r.literal(lit, ParamRef{Relation: ref.relation, Column: strings.ToLower(ref.Column), Op: op})
	r.write(strings.Repeat(")", parens))
}

func (r *renderer) column(ref *ColumnRef) {
	if ref.alias || ref.Table == "" {
		r.write(ref.Column)
		return
	}
	r.write(ref.Table + "." + ref.Column)
}

func (r *renderer) literal(lit *Literal, ref ParamRef) {
	if lit.Kind == LitString {
		r.bind(lit.Value, ref)
		return
	}
	if n, err := strconv.ParseInt(lit.Value, 10, 64); err == nil {
		r.bind(n, ref)
		return
	}
	if f, err := strconv.ParseFloat(lit.Value, 64); err == nil {
		r.bind(f, ref)
		return
	}
	r.bind(lit.Value, ref)
}

func (r *renderer) bind(value any, ref ParamRef) {
	ref.Index = len(r.args)
	r.args = append(r.args, value)
	r.params = append(r.params, ref)
	r.write("$" + strconv.Itoa(len(r.args)))
}

func (r *renderer) write(s string) {
	r.b.WriteString(s)
}
