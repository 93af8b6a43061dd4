package sqlgate

import (
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

var mutatingVerbs = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "ALTER": {},
	"CREATE": {}, "TRUNCATE": {}, "GRANT": {}, "REVOKE": {}, "COPY": {},
	"MERGE": {}, "CALL": {}, "DO": {}, "EXECUTE": {}, "SET": {},
	"VACUUM": {}, "LOCK": {}, "REINDEX": {}, "COMMENT": {}, "REFRESH": {},
}

var reservedWords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "GROUP": {}, "BY": {}, "HAVING": {},
	"ORDER": {}, "LIMIT": {}, "OFFSET": {}, "JOIN": {}, "LEFT": {}, "RIGHT": {},
	"INNER": {}, "FULL": {}, "OUTER": {}, "CROSS": {}, "ON": {}, "AS": {},
	"AND": {}, "OR": {}, "NOT": {}, "IN": {}, "IS": {}, "NULL": {}, "LIKE": {},
	"ILIKE": {}, "BETWEEN": {}, "ASC": {}, "DESC": {}, "NULLS": {},
	"DISTINCT": {}, "UNION": {}, "INTERSECT": {}, "EXCEPT": {}, "INTO": {},
	"FOR": {}, "WITH": {}, "CASE": {}, "TRUE": {}, "FALSE": {}, "ALL": {},
	"USING": {}, "NATURAL": {}, "LATERAL": {}, "WINDOW": {}, "FETCH": {},
	"RETURNING": {}, "CURRENT_DATE": {}, "CURRENT_TIMESTAMP": {},
}

var allowedFunctions = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {},
	"coalesce": {}, "lower": {}, "upper": {}, "round": {}, "length": {},
	"trim": {}, "concat": {}, "nullif": {}, "abs": {}, "floor": {},
	"ceil": {}, "now": {},
}

// Parse reads one restricted SELECT statement. Any construct outside the
// grammar is returned as a *contract.SafetyRejection.
func Parse(text string) (*Statement, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseStatement()
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) parseStatement() (*Statement, error) {
	first := p.peek()
	if first.kind == tokEOF {
		return nil, contractx.Reject(contractx.RuleReadOnly, "statement is empty")
	}
	if first.kind == tokIdent {
		if _, ok := mutatingVerbs[first.upper()]; ok {
			return nil, contractx.Reject(contractx.RuleReadOnly, "mutating verb %s", first.upper())
		}
		if first.upper() == "WITH" {
			return nil, contractx.Reject(contractx.RuleReadOnly, "common table expressions are not allowed")
		}
	}
	if !p.matchKeyword("SELECT") {
		return nil, contractx.Reject(contractx.RuleReadOnly, "statement must be a SELECT, got %s", first)
	}

	stmt := &Statement{}
	if p.matchKeyword("DISTINCT") {
		stmt.Distinct = true
	} else {
		p.matchKeyword("ALL")
	}

	items, err := p.parseSelectItems()
	if err != nil {
		return nil, err
	}
	stmt.Items = items

	if p.peekKeyword("INTO") {
		return nil, contractx.Reject(contractx.RuleReadOnly, "SELECT INTO is not allowed")
	}
	if !p.matchKeyword("FROM") {
		return nil, p.unexpected("FROM")
	}
	if stmt.From, err = p.parseTableRef(); err != nil {
		return nil, err
	}

	for {
		kind, ok, err := p.parseJoinKind()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		table, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		if !p.matchKeyword("ON") {
			return nil, p.unexpected("ON")
		}
		on, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, Join{Kind: kind, Table: table, On: on})
	}

	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.matchKeyword("GROUP") {
		if !p.matchKeyword("BY") {
			return nil, p.unexpected("BY")
		}
		if stmt.GroupBy, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}
	if p.matchKeyword("HAVING") {
		if stmt.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return nil, p.unexpected("BY")
		}
		if stmt.OrderBy, err = p.parseOrderItems(); err != nil {
			return nil, err
		}
	}
	if p.matchKeyword("LIMIT") {
		if stmt.Limit, err = p.parseCount("LIMIT"); err != nil {
			return nil, err
		}
	}
	if p.matchKeyword("OFFSET") {
		if stmt.Offset, err = p.parseCount("OFFSET"); err != nil {
			return nil, err
		}
	}

	switch {
	case p.peekKeyword("FOR"):
		return nil, contractx.Reject(contractx.RuleReadOnly, "locking clauses are not allowed")
	case p.peekKeyword("UNION"), p.peekKeyword("INTERSECT"), p.peekKeyword("EXCEPT"):
		return nil, contractx.Reject(contractx.RuleReadOnly, "set operations are not allowed")
	}

	p.matchSymbol(";")
	if p.peek().kind != tokEOF {
		if p.pos > 0 && p.toks[p.pos-1].text == ";" {
			return nil, contractx.Reject(contractx.RuleReadOnly, "multiple statements are not allowed")
		}
		return nil, p.unexpected("end of statement")
	}
	return stmt, nil
}

func (p *parser) parseSelectItems() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.matchSymbol(",") {
			return items, nil
		}
	}
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.matchSymbol("*") {
		return SelectItem{Star: true}, nil
	}
	// alias.*
	if p.peek().kind == tokIdent && p.peekAt(1).text == "." && p.peekAt(2).text == "*" {
		table := p.advance().text
		p.pos += 2
		return SelectItem{Star: true, Table: table}, nil
	}

	expr, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	alias, err := p.parseAlias()
	if err != nil {
		return SelectItem{}, err
	}
	return SelectItem{Expr: expr, Alias: alias}, nil
}

func (p *parser) parseAlias() (string, error) {
	if p.matchKeyword("AS") {
		tok := p.peek()
		if tok.kind != tokIdent || isReserved(tok) {
			return "", p.unexpected("alias")
		}
		p.advance()
		return tok.text, nil
	}
	if tok := p.peek(); tok.kind == tokIdent && !isReserved(tok) {
		p.advance()
		return tok.text, nil
	}
	return "", nil
}

func (p *parser) parseTableRef() (TableRef, error) {
	if p.peekSymbol("(") {
		return TableRef{}, contractx.Reject(contractx.RuleReadOnly, "derived tables are not allowed")
	}
	tok := p.peek()
	if tok.kind != tokIdent || isReserved(tok) {
		return TableRef{}, p.unexpected("relation name")
	}
	p.advance()
	if p.peekSymbol(".") {
		return TableRef{}, contractx.Reject(contractx.RuleRelation, "schema-qualified relations are not allowed")
	}
	alias, err := p.parseAlias()
	if err != nil {
		return TableRef{}, err
	}
	return TableRef{Name: tok.text, Alias: alias}, nil
}

func (p *parser) parseJoinKind() (string, bool, error) {
	switch {
	case p.matchKeyword("JOIN"):
		return "JOIN", true, nil
	case p.matchKeyword("INNER"):
		if !p.matchKeyword("JOIN") {
			return "", false, p.unexpected("JOIN")
		}
		return "INNER JOIN", true, nil
	case p.peekKeyword("LEFT"), p.peekKeyword("RIGHT"), p.peekKeyword("FULL"):
		kind := p.advance().upper()
		p.matchKeyword("OUTER")
		if !p.matchKeyword("JOIN") {
			return "", false, p.unexpected("JOIN")
		}
		return kind + " JOIN", true, nil
	case p.peekSymbol(","), p.peekKeyword("CROSS"), p.peekKeyword("NATURAL"):
		return "", false, contractx.Reject(contractx.RuleReadOnly, "joins must use JOIN ... ON")
	}
	return "", false, nil
}

func (p *parser) parseOrderItems() ([]OrderItem, error) {
	var items []OrderItem
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: expr}
		if p.matchKeyword("DESC") {
			item.Desc = true
		} else {
			p.matchKeyword("ASC")
		}
		if p.matchKeyword("NULLS") {
			switch {
			case p.matchKeyword("FIRST"):
				item.Nulls = "FIRST"
			case p.matchKeyword("LAST"):
				item.Nulls = "LAST"
			default:
				return nil, p.unexpected("FIRST or LAST")
			}
		}
		items = append(items, item)
		if !p.matchSymbol(",") {
			return items, nil
		}
	}
}

func (p *parser) parseCount(clause string) (*int64, error) {
	tok := p.peek()
	if tok.kind != tokNumber {
		return nil, contractx.Reject(contractx.RuleLimit, "%s must be a non-negative integer", clause)
	}
	n, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil || n < 0 {
		return nil, contractx.Reject(contractx.RuleLimit, "%s must be a non-negative integer", clause)
	}
	p.advance()
	return &n, nil
}

func (p *parser) parseExprList() ([]Expr, error) {
	var out []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.matchSymbol(",") {
			return out, nil
		}
	}
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.matchKeyword("NOT") {
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", Expr: e}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	for _, op := range []string{"=", "<>", "!=", "<=", ">=", "<", ">"} {
		if p.matchSymbol(op) {
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &BinaryExpr{Op: op, Left: left, Right: right}, nil
		}
	}

	if p.matchKeyword("IS") {
		not := p.matchKeyword("NOT")
		if !p.matchKeyword("NULL") {
			return nil, p.unexpected("NULL")
		}
		return &IsNullExpr{Expr: left, Not: not}, nil
	}

	not := false
	if p.peekKeyword("NOT") {
		next := p.peekAt(1).upper()
		if next == "IN" || next == "LIKE" || next == "ILIKE" || next == "BETWEEN" {
			p.advance()
			not = true
		}
	}

	switch {
	case p.matchKeyword("IN"):
		list, err := p.parseInList()
		if err != nil {
			return nil, err
		}
		return &InExpr{Expr: left, List: list, Not: not}, nil
	case p.peekKeyword("LIKE"), p.peekKeyword("ILIKE"):
		op := p.advance().upper()
		pattern, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &LikeExpr{Expr: left, Pattern: pattern, Op: op, Not: not}, nil
	case p.matchKeyword("BETWEEN"):
		low, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if !p.matchKeyword("AND") {
			return nil, p.unexpected("AND")
		}
		high, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Expr: left, Low: low, High: high, Not: not}, nil
	}
	return left, nil
}

func (p *parser) parseInList() ([]Expr, error) {
	if !p.matchSymbol("(") {
		return nil, p.unexpected("(")
	}
	if p.peekKeyword("SELECT") {
		return nil, contractx.Reject(contractx.RuleReadOnly, "subqueries are not allowed")
	}
	list, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if !p.matchSymbol(")") {
		return nil, p.unexpected(")")
	}
	return list, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSymbol("+"):
			op = "+"
		case p.matchSymbol("-"):
			op = "-"
		case p.matchSymbol("||"):
			op = "||"
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSymbol("*"):
			op = "*"
		case p.matchSymbol("/"):
			op = "/"
		case p.matchSymbol("%"):
			op = "%"
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.matchSymbol("+") {
		return p.parseUnary()
	}
	if p.matchSymbol("-") {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := e.(*Literal); ok && lit.Kind == LitNumber {
			if strings.HasPrefix(lit.Value, "-") {
				lit.Value = lit.Value[1:]
			} else {
				lit.Value = "-" + lit.Value
			}
			return lit, nil
		}
		return &UnaryExpr{Op: "-", Expr: e}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.advance()
		return &Literal{Kind: LitNumber, Value: tok.text}, nil
	case tokString:
		p.advance()
		return &Literal{Kind: LitString, Value: tok.text}, nil
	case tokSymbol:
		if tok.text != "(" {
			return nil, p.unexpected("expression")
		}
		p.advance()
		if p.peekKeyword("SELECT") {
			return nil, contractx.Reject(contractx.RuleReadOnly, "subqueries are not allowed")
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.matchSymbol(")") {
			return nil, p.unexpected(")")
		}
		return &ParenExpr{Expr: inner}, nil
	case tokIdent:
		return p.parseIdentExpr()
	}
	return nil, p.unexpected("expression")
}

func (p *parser) parseIdentExpr() (Expr, error) {
	tok := p.advance()
	switch tok.upper() {
	case "NULL", "TRUE", "FALSE", "CURRENT_DATE", "CURRENT_TIMESTAMP":
		return &Constant{Name: tok.upper()}, nil
	case "CASE", "EXISTS", "ARRAY", "ROW", "INTERVAL", "CAST":
		return nil, contractx.Reject(contractx.RuleReadOnly, "%s expressions are not allowed", tok.upper())
	}
	if isReserved(tok) {
		p.pos--
		return nil, p.unexpected("expression")
	}

	if p.matchSymbol("(") {
		return p.parseCall(tok.text)
	}
	if p.matchSymbol(".") {
		col := p.peek()
		if col.kind != tokIdent {
			return nil, p.unexpected("column name")
		}
		p.advance()
		if p.peekSymbol(".") || p.peekSymbol("(") {
			return nil, contractx.Reject(contractx.RuleRelation, "schema-qualified references are not allowed")
		}
		return &ColumnRef{Table: tok.text, Column: col.text}, nil
	}
	return &ColumnRef{Column: tok.text}, nil
}

func (p *parser) parseCall(name string) (Expr, error) {
	if _, ok := allowedFunctions[name]; !ok {
		return nil, contractx.Reject(contractx.RuleReadOnly, "function %s is not allowed", name)
	}
	call := &FuncCall{Name: name}
	if p.matchSymbol(")") {
		return call, nil
	}
	if name == "count" && p.matchSymbol("*") {
		call.Star = true
		if !p.matchSymbol(")") {
			return nil, p.unexpected(")")
		}
		return call, nil
	}
	if p.matchKeyword("DISTINCT") {
		call.Distinct = true
	}
	if p.peekKeyword("SELECT") {
		return nil, contractx.Reject(contractx.RuleReadOnly, "subqueries are not allowed")
	}
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	call.Args = args
	if !p.matchSymbol(")") {
		return nil, p.unexpected(")")
	}
	return call, nil
}

func (p *parser) unexpected(want string) error {
	return contractx.Reject(contractx.RuleReadOnly, "expected %s at position %d, got %s", want, p.peek().pos, p.peek())
}

func (p *parser) peek() token {
	return p.peekAt(0)
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	tok := p.peek()
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) peekKeyword(kw string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.upper() == kw
}

func (p *parser) matchKeyword(kw string) bool {
	if p.peekKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peekSymbol(sym string) bool {
	tok := p.peek()
	return tok.kind == tokSymbol && tok.text == sym
}

func (p *parser) matchSymbol(sym string) bool {
	if p.peekSymbol(sym) {
		p.pos++
		return true
	}
	return false
}

func isReserved(tok token) bool {
	_, ok := reservedWords[tok.upper()]
	return ok
}
