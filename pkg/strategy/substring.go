package strategy

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Match bonuses per query term.
const (
	bonusExact   = 0.25
	bonusPrefix  = 0.15
	bonusSuffix  = 0.10
	bonusPartial = 0.05
	bonusSummary = 0.10

	substringBaseScore  = 0.3
	shortTermMultiplier = 1.1
)

var quotedPhrase = regexp.MustCompile(`"([^"]*)"`)

// term is one search predicate. Phrases hold their folded words.
type term struct {
	word   string
	phrase []string
}

func (t term) pattern() string {
	if len(t.phrase) == 0 {
		return "%" + memory.EscapeLike(t.word) + "%"
	}
	escaped := make([]string, len(t.phrase))
	for i, w := range t.phrase {
		escaped[i] = memory.EscapeLike(w)
	}
	return "%" + strings.Join(escaped, "%") + "%"
}

// Substring scores case-insensitive word matches. It serves as the
// fallback when no inverted index is available.
type Substring struct {
	base
}

// NewSubstring builds the substring strategy.
func NewSubstring(store memory.Store, cfg strategyconfig.StrategyConfig) *Substring {
	return &Substring{
		base: newBase(strategyconfig.Substring,
			"Case-insensitive substring matching with exact, prefix and suffix bonuses",
			store, cfg,
			search.CapKeywordSearch, search.CapRelevanceScoring),
	}
}

func (s *Substring) CanHandle(q search.Query) bool {
	return q.HasText()
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// parseTerms extracts quoted phrases and words, folding case, dropping
// short words and duplicates, and keeping at most maxTerms.
func parseTerms(text string, maxTerms, minLen int, phrases bool) []term {
	var terms []term
	seen := map[string]bool{}
	add := func(t term) bool {
		key := t.word
		if len(t.phrase) > 0 {
			key = strings.Join(t.phrase, " ")
		}
		if seen[key] {
			return true
		}
		seen[key] = true
		terms = append(terms, t)
		return len(terms) < maxTerms
	}

	rest := text
	if phrases {
		for _, m := range quotedPhrase.FindAllStringSubmatch(text, -1) {
			words := splitWords(memory.Fold(m[1]))
			switch len(words) {
			case 0:
				continue
			case 1:
				if utf8.RuneCountInString(words[0]) < minLen {
					continue
				}
				if !add(term{word: words[0]}) {
					return terms
				}
			default:
				if !add(term{phrase: words}) {
					return terms
				}
			}
		}
		rest = quotedPhrase.ReplaceAllString(text, " ")
	}

	for _, w := range splitWords(memory.Fold(rest)) {
		if utf8.RuneCountInString(w) < minLen {
			continue
		}
		if !add(term{word: w}) {
			break
		}
	}
	return terms
}

func (s *Substring) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	if !q.HasText() {
		return nil, search.NewValidationError("text", "search text must not be empty")
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}

	terms := parseTerms(q.Text,
		s.intOpt("max_terms", 10),
		s.intOpt("min_word_length", 2),
		s.boolOpt("enable_phrase_matching", true))
	if len(terms) == 0 {
		return []search.Result{}, nil
	}

	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = t.pattern()
	}
	records, err := s.store.Records(ctx, memory.RecordFilter{Types: types, Patterns: patterns})
	if err != nil {
		return nil, search.WrapBackend("substring scan", err)
	}

	results := make([]search.Result, 0, len(records))
	for _, r := range records {
		results = append(results, s.result(r, scoreSubstring(r, terms)))
	}
	return sortAndTrim(results, s.fetchLimit(q)), nil
}

// scoreSubstring computes
// clamp(0.3 + sum(bonus), 0, 1) * (0.5 + importance), times 1.1 for
// short-term records, clamped to [0,1].
func scoreSubstring(r *memory.Record, terms []term) float64 {
	content := memory.Fold(r.Content)
	summary := memory.Fold(r.Summary)
	words := splitWords(content)

	total := substringBaseScore
	for _, t := range terms {
		total += termBonus(t, content, summary, words)
	}
	score := search.ClampScore(total) * (0.5 + r.Importance)
	if r.MemoryType == memory.ShortTerm {
		score *= shortTermMultiplier
	}
	return search.ClampScore(score)
}

func termBonus(t term, content, summary string, words []string) float64 {
	if len(t.phrase) > 0 {
		p := t.pattern()
		bonus := 0.0
		if memory.MatchPattern(p, content) {
			bonus = bonusExact
		}
		if memory.MatchPattern(p, summary) {
			bonus += bonusSummary
		}
		return bonus
	}

	best := 0.0
	for _, w := range words {
		switch {
		case w == t.word:
			best = bonusExact
		case strings.HasPrefix(w, t.word):
			best = max(best, bonusPrefix)
		case strings.HasSuffix(w, t.word):
			best = max(best, bonusSuffix)
		}
		if best == bonusExact {
			break
		}
	}
	if best == 0 && strings.Contains(content, t.word) {
		best = bonusPartial
	}
	if summary != "" && strings.Contains(summary, t.word) {
		best += bonusSummary
	}
	return best
}
