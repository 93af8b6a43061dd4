package sqlgate

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// upper is the keyword spelling of an identifier token.
func (t token) upper() string {
	return strings.ToUpper(t.text)
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// lex splits a statement into tokens. Anything the grammar never accepts is
// refused here: comments, casts, positional placeholders, dollar quoting and
// quoted identifiers that are not plain names.
func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	l.skipSpaces()
	if !l.hasNext() {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.peek()
	switch {
	case isIdentStart(ch):
		for l.hasNext() && isIdentPart(l.peek()) {
			l.pos++
		}
		return token{kind: tokIdent, text: strings.ToLower(l.input[start:l.pos]), pos: start}, nil
	case isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		return l.number()
	case ch == '\'':
		return l.str()
	case ch == '"':
		return l.quotedIdent()
	case ch == '$':
		return token{}, contractx.Reject(contractx.RuleBindParameter, "placeholder or dollar quote at position %d", start)
	}

	if strings.HasPrefix(l.input[l.pos:], "--") || strings.HasPrefix(l.input[l.pos:], "/*") {
		return token{}, contractx.Reject(contractx.RuleReadOnly, "comments are not allowed")
	}
	if strings.HasPrefix(l.input[l.pos:], "::") {
		return token{}, contractx.Reject(contractx.RuleReadOnly, "casts are not allowed")
	}

	for _, sym := range []string{"<>", "!=", "<=", ">=", "||"} {
		if strings.HasPrefix(l.input[l.pos:], sym) {
			l.pos += len(sym)
			return token{kind: tokSymbol, text: sym, pos: start}, nil
		}
	}
	switch ch {
	case ',', '(', ')', '.', '*', '+', '-', '/', '%', '=', '<', '>', ';':
		l.pos++
		return token{kind: tokSymbol, text: string(ch), pos: start}, nil
	}
	return token{}, contractx.Reject(contractx.RuleReadOnly, "unexpected character %q at position %d", ch, start)
}

func (l *lexer) number() (token, error) {
	start := l.pos
	hasDot := false
	for l.hasNext() {
		ch := l.peek()
		switch {
		case isDigit(ch):
			l.pos++
		case ch == '.':
			if hasDot {
				return token{}, contractx.Reject(contractx.RuleReadOnly, "invalid number format at position %d", l.pos)
			}
			hasDot = true
			l.pos++
		default:
			goto done
		}
	}
done:
	if l.hasNext() && isIdentStart(l.peek()) {
		return token{}, contractx.Reject(contractx.RuleReadOnly, "invalid number format at position %d", start)
	}
	return token{kind: tokNumber, text: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) str() (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.hasNext() {
		ch := l.peek()
		l.pos++
		if ch != '\'' {
			b.WriteByte(ch)
			continue
		}
		if l.hasNext() && l.peek() == '\'' {
			b.WriteByte('\'')
			l.pos++
			continue
		}
		return token{kind: tokString, text: b.String(), pos: start}, nil
	}
	return token{}, contractx.Reject(contractx.RuleReadOnly, "unterminated string at position %d", start)
}

func (l *lexer) quotedIdent() (token, error) {
	start := l.pos
	end := strings.IndexByte(l.input[start+1:], '"')
	if end < 0 {
		return token{}, contractx.Reject(contractx.RuleReadOnly, "unterminated identifier at position %d", start)
	}
	name := l.input[start+1 : start+1+end]
	if !identifierPattern.MatchString(name) {
		return token{}, contractx.Reject(contractx.RuleReadOnly, "quoted identifier %q is not a plain name", name)
	}
	l.pos = start + end + 2
	return token{kind: tokIdent, text: name, pos: start}, nil
}

func (l *lexer) skipSpaces() {
	for l.hasNext() {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) hasNext() bool {
	return l.pos < len(l.input)
}

func (l *lexer) peek() byte {
	return l.input[l.pos]
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of statement"
	}
	return fmt.Sprintf("%q", t.text)
}
