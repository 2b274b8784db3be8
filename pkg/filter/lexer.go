package filter

import (
	"strings"
	"unicode"

	"github.com/goclaw/recall/pkg/search"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokWord // unquoted literal starting with a digit, sign or "now"
	tokOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return "string " + `"` + t.text + `"`
	}
	return `"` + t.text + `"`
}

type lexer struct {
	src    []rune
	pos    int
	tokens []token
}

func syntaxError(pos int, format string, args ...any) error {
	return search.NewValidationError("filter_expression", format+" at position %d", append(args, pos)...)
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func isWordPart(r rune) bool {
	return unicode.IsDigit(r) || unicode.IsLetter(r) || strings.ContainsRune("-+:._", r)
}

func lex(expr string) ([]token, error) {
	l := &lexer{src: []rune(expr)}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	r := l.src[l.pos]

	switch {
	case r == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case r == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case r == '"' || r == '\'':
		return l.quoted(r)
	case r == '{':
		end := start
		for end < len(l.src) && l.src[end] != '}' {
			end++
		}
		return token{}, syntaxError(start, "placeholder %s is only allowed in templates", string(l.src[start:min(end+1, len(l.src))]))
	case strings.ContainsRune("=!<>~", r):
		return l.operator()
	case unicode.IsDigit(r) || ((r == '-' || r == '+') && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1])):
		l.pos++
		for l.pos < len(l.src) && isWordPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokWord, text: string(l.src[start:l.pos]), pos: start}, nil
	case isIdentStart(r):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		switch strings.ToUpper(text) {
		case "AND":
			return token{kind: tokAnd, text: "AND", pos: start}, nil
		case "OR":
			return token{kind: tokOr, text: "OR", pos: start}, nil
		case "NOT":
			return token{kind: tokNot, text: "NOT", pos: start}, nil
		case "CONTAINS":
			return token{kind: tokOp, text: string(OpContains), pos: start}, nil
		case "NOW":
			// now, now-7d, now+1h
			for l.pos < len(l.src) && isWordPart(l.src[l.pos]) {
				l.pos++
			}
			return token{kind: tokWord, text: strings.ToLower(string(l.src[start:l.pos])), pos: start}, nil
		}
		return token{kind: tokIdent, text: text, pos: start}, nil
	}
	return token{}, syntaxError(start, "unexpected character %q", r)
}

func (l *lexer) quoted(q rune) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		switch {
		case r == '\\' && l.pos+1 < len(l.src):
			b.WriteRune(l.src[l.pos+1])
			l.pos += 2
		case r == q:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		default:
			b.WriteRune(r)
			l.pos++
		}
	}
	return token{}, syntaxError(start, "unterminated string")
}

func (l *lexer) operator() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && strings.ContainsRune("=!<>~", l.src[l.pos]) {
		l.pos++
	}
	text := string(l.src[start:l.pos])
	switch Op(text) {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpLike:
		return token{kind: tokOp, text: text, pos: start}, nil
	}
	return token{}, syntaxError(start, "unsupported operator %q", text)
}
