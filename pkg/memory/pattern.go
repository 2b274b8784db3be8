package memory

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the Unicode case-folded form of s.
func Fold(s string) string {
	// Casers keep state; build one per call.
	return cases.Fold().String(s)
}

type patternToken struct {
	kind byte // 'l' literal, '%' any run, '_' any single
	r    rune
}

func compilePattern(pattern string) []patternToken {
	runes := []rune(Fold(pattern))
	tokens := make([]patternToken, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			if i+1 < len(runes) {
				i++
			}
			tokens = append(tokens, patternToken{kind: 'l', r: runes[i]})
		case '%':
			tokens = append(tokens, patternToken{kind: '%'})
		case '_':
			tokens = append(tokens, patternToken{kind: '_'})
		default:
			tokens = append(tokens, patternToken{kind: 'l', r: runes[i]})
		}
	}
	return tokens
}

// MatchPattern reports whether text matches a LIKE-style pattern, ignoring
// case. '%' matches any run of characters, '_' matches exactly one and '\'
// escapes the next character. A pattern without wildcards must match the
// whole text.
func MatchPattern(pattern, text string) bool {
	p := compilePattern(pattern)
	t := []rune(Fold(text))

	pi, ti := 0, 0
	star, mark := -1, 0
	for ti < len(t) {
		switch {
		case pi < len(p) && (p[pi].kind == '_' || (p[pi].kind == 'l' && p[pi].r == t[ti])):
			pi++
			ti++
		case pi < len(p) && p[pi].kind == '%':
			star = pi
			mark = ti
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi].kind == '%' {
		pi++
	}
	return pi == len(p)
}

// ContainsFold reports whether substr occurs in s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}

// EscapeLike escapes LIKE wildcards in a literal using '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
