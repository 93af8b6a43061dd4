package sqlgate

// Statement is the parsed form of a single SELECT.
type Statement struct {
	Distinct bool
	Items    []SelectItem
	From     TableRef
	Joins    []Join
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    *int64
	Offset   *int64
}

// SelectItem is one projection. Star items have no Expr; Table is set for
// the qualified form alias.*.
type SelectItem struct {
	Star  bool
	Table string
	Expr  Expr
	Alias string
}

type TableRef struct {
	Name  string
	Alias string
}

// Ref is the name the relation is referred to by inside the statement.
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

type Join struct {
	Kind  string
	Table TableRef
	On    Expr
}

type OrderItem struct {
	Expr  Expr
	Desc  bool
	Nulls string
}

// Expr is any scalar expression node.
type Expr interface {
	exprNode()
}

type ColumnRef struct {
	Table  string
	Column string

	// resolved by validation
	relation string
	alias    bool
}

type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
)

// Literal is a user-supplied value. Literals are always rendered as bind
// parameters.
type Literal struct {
	Kind  LiteralKind
	Value string
}

// Constant is a keyword value such as NULL, TRUE or CURRENT_DATE.
type Constant struct {
	Name string
}

type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	Op   string
	Expr Expr
}

type FuncCall struct {
	Name     string
	Args     []Expr
	Star     bool
	Distinct bool
}

type InExpr struct {
	Expr Expr
	List []Expr
	Not  bool
}

type BetweenExpr struct {
	Expr Expr
	Low  Expr
	High Expr
	Not  bool
}

type IsNullExpr struct {
	Expr Expr
	Not  bool
}

type LikeExpr struct {
	Expr    Expr
	Pattern Expr
	Op      string
	Not     bool
}

type ParenExpr struct {
	Expr Expr
}

func (*ColumnRef) exprNode()   {}
func (*Literal) exprNode()     {}
func (*Constant) exprNode()    {}
func (*BinaryExpr) exprNode()  {}
func (*UnaryExpr) exprNode()   {}
func (*FuncCall) exprNode()    {}
func (*InExpr) exprNode()      {}
func (*BetweenExpr) exprNode() {}
func (*IsNullExpr) exprNode()  {}
func (*LikeExpr) exprNode()    {}
func (*ParenExpr) exprNode()   {}

// walk visits e and every expression nested in it, depth first.
func walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *BinaryExpr:
		walk(n.Left, fn)
		walk(n.Right, fn)
	case *UnaryExpr:
		walk(n.Expr, fn)
	case *FuncCall:
		for _, a := range n.Args {
			walk(a, fn)
		}
	case *InExpr:
		walk(n.Expr, fn)
		for _, a := range n.List {
			walk(a, fn)
		}
	case *BetweenExpr:
		walk(n.Expr, fn)
		walk(n.Low, fn)
		walk(n.High, fn)
	case *IsNullExpr:
		walk(n.Expr, fn)
	case *LikeExpr:
		walk(n.Expr, fn)
		walk(n.Pattern, fn)
	case *ParenExpr:
		walk(n.Expr, fn)
	}
}

// exprs lists every top-level expression of the statement.
func (s *Statement) exprs() []Expr {
	var out []Expr
	for _, it := range s.Items {
		if it.Expr != nil {
			out = append(out, it.Expr)
		}
	}
	for _, j := range s.Joins {
		out = append(out, j.On)
	}
	if s.Where != nil {
		out = append(out, s.Where)
	}
	out = append(out, s.GroupBy...)
	if s.Having != nil {
		out = append(out, s.Having)
	}
	for _, o := range s.OrderBy {
		out = append(out, o.Expr)
	}
	return out
}

func (s *Statement) tables() []TableRef {
	out := []TableRef{s.From}
	for _, j := range s.Joins {
		out = append(out, j.Table)
	}
	return out
}
