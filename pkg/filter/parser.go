package filter

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/goclaw/recall/pkg/search"
)

// Parse parses a filter expression into a tree. Errors are
// *search.ValidationError values describing the first problem found.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, search.NewValidationError("filter_expression", "expression is empty")
	}
	if err := checkParens(expr); err != nil {
		return nil, err
	}
	tokens, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxError(tok.pos, "unexpected %s", tok.describe())
	}
	return n, nil
}

// Validate reports the first syntax problem of expr, or nil.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// checkParens verifies parentheses outside quoted strings are balanced.
func checkParens(expr string) error {
	depth := 0
	var quote rune
	escaped := false
	for i, r := range expr {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return search.NewValidationError("filter_expression", "unbalanced parentheses: unexpected ')' at position %d", i)
			}
		}
	}
	if depth > 0 {
		return search.NewValidationError("filter_expression", "unbalanced parentheses: %d unclosed '('", depth)
	}
	return nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &Or{Children: children}, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &And{Children: children}, nil
}

func (p *parser) parseUnary() (Node, error) {
	switch tok := p.peek(); tok.kind {
	case tokNot:
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil
	case tokLParen:
		p.advance()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, syntaxError(closing.pos, "expected ')' but found %s", closing.describe())
		}
		return n, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (Node, error) {
	field := p.advance()
	if field.kind != tokIdent {
		return nil, syntaxError(field.pos, "expected a field name but found %s", field.describe())
	}
	op := p.advance()
	if op.kind != tokOp {
		return nil, syntaxError(op.pos, "expected an operator after %q but found %s", field.text, op.describe())
	}
	lit := p.advance()
	v, err := parseValue(lit)
	if err != nil {
		return nil, err
	}
	return &Comparison{Field: field.text, Op: Op(op.text), Value: v}, nil
}

func parseValue(tok token) (Value, error) {
	switch tok.kind {
	case tokString:
		return Value{Kind: KindString, Str: tok.text, Raw: strconv.Quote(tok.text)}, nil
	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			return Value{Kind: KindBool, Bool: true, Raw: "true"}, nil
		case "false":
			return Value{Kind: KindBool, Bool: false, Raw: "false"}, nil
		}
		// Bare words compare as strings: memory_type = short_term.
		return Value{Kind: KindString, Str: tok.text, Raw: strconv.Quote(tok.text)}, nil
	case tokWord:
		if strings.HasPrefix(tok.text, "now") {
			off, err := parseOffset(tok.text[3:])
			if err != nil {
				return Value{}, syntaxError(tok.pos, "invalid relative time %q: %v", tok.text, err)
			}
			return Value{Kind: KindRelative, Offset: off, Raw: tok.text}, nil
		}
		if f, err := strconv.ParseFloat(tok.text, 64); err == nil {
			return Value{Kind: KindNumber, Num: f, Raw: tok.text}, nil
		}
		if t, ok := parseTime(tok.text); ok {
			return Value{Kind: KindTime, Time: t, Raw: tok.text}, nil
		}
		return Value{}, syntaxError(tok.pos, "invalid literal %q", tok.text)
	}
	return Value{}, syntaxError(tok.pos, "expected a value but found %s", tok.describe())
}

var offsetUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// parseOffset parses the part after "now": "", "-7d", "+12h".
func parseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
	case '+':
	default:
		return 0, errors.New("expected '+' or '-'")
	}
	body := s[1:]
	if len(body) < 2 {
		return 0, errors.New("expected a count and a unit")
	}
	unit, ok := offsetUnits[body[len(body)-1]]
	if !ok {
		return 0, errors.New("unit must be one of s, m, h, d, w")
	}
	digits := body[:len(body)-1]
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return 0, errors.New("count must be an integer")
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, err
	}
	return sign * time.Duration(n) * unit, nil
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
