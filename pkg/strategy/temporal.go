package strategy

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

const remainderBoost = 0.1

// Temporal selects records created inside a time range parsed from
// natural language ("last 3 days", "yesterday", "since 2025-01-01").
type Temporal struct {
	base
}

// NewTemporal builds the temporal strategy.
func NewTemporal(store memory.Store, cfg strategyconfig.StrategyConfig) *Temporal {
	return &Temporal{
		base: newBase(strategyconfig.Temporal,
			"Natural-language date range filtering",
			store, cfg,
			search.CapFiltering, search.CapSorting),
	}
}

// resolve finds the time range of a query: explicit start/end filters,
// then Filters["date"], then the query text.
func (s *Temporal) resolve(q search.Query) (ParsedDate, bool) {
	now := s.now()
	fallback := time.Duration(s.intOpt("default_range_days", 30)) * 24 * time.Hour

	startStr, hasStart := q.FilterString("start")
	endStr, hasEnd := q.FilterString("end")
	if hasStart || hasEnd {
		r := TimeRange{Start: now.Add(-fallback), End: now.Add(time.Nanosecond)}
		ok := true
		if hasStart {
			t, _, parsed := parseISO(startStr, now.Location())
			r.Start, ok = t, ok && parsed
		}
		if hasEnd {
			t, dayOnly, parsed := parseISO(endStr, now.Location())
			if dayOnly {
				t = t.AddDate(0, 0, 1)
			}
			r.End, ok = t, ok && parsed
		}
		if ok && r.Start.Before(r.End) {
			return ParsedDate{Range: r, Confidence: 1, Remainder: q.Text}, true
		}
	}

	if expr, ok := q.FilterString("date"); ok {
		if p, ok := ParseDateExpression(expr, now, fallback); ok {
			p.Remainder = q.Text
			return p, true
		}
	}
	if q.HasText() {
		return ParseDateExpression(q.Text, now, fallback)
	}
	return ParsedDate{}, false
}

func (s *Temporal) CanHandle(q search.Query) bool {
	p, ok := s.resolve(q)
	return ok && p.Confidence >= s.floatOpt("confidence_threshold", 0.6)
}

func (s *Temporal) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	p, ok := s.resolve(q)
	if !ok {
		return nil, search.NewValidationError("date", "no time expression found in %q", q.Text)
	}
	if threshold := s.floatOpt("confidence_threshold", 0.6); p.Confidence < threshold {
		return nil, search.NewValidationError("date", "time expression %q parsed with confidence %.2f below %.2f", p.Expression, p.Confidence, threshold)
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}

	records, err := s.store.Records(ctx, memory.RecordFilter{
		Types: types,
		Since: p.Range.Start,
		Until: p.Range.End.Add(-time.Nanosecond),
	})
	if err != nil {
		return nil, search.WrapBackend("temporal scan", err)
	}

	words := remainderWords(p.Remainder)
	span := p.Range.End.Sub(p.Range.Start)
	results := make([]search.Result, 0, len(records))
	for _, r := range records {
		if !p.Range.Contains(r.CreatedAt) {
			continue
		}
		position := 1.0
		if span > 0 {
			position = float64(r.CreatedAt.Sub(p.Range.Start)) / float64(span)
		}
		score := s.importanceBlend(0.5+0.5*position, r.Importance)
		if len(words) > 0 {
			score += remainderBoost * wordCoverage(r, words)
		}
		res := s.result(r, score)
		if res.Metadata.Extra == nil {
			res.Metadata.Extra = map[string]any{}
		}
		res.Metadata.Extra["time_range"] = p.Range
		results = append(results, res)
	}
	return sortAndTrim(results, s.fetchLimit(q)), nil
}

var temporalStopWords = map[string]bool{
	"the": true, "and": true, "from": true, "what": true, "did": true, "about": true,
	"with": true, "for": true, "that": true, "this": true, "were": true, "was": true,
}

func remainderWords(text string) []string {
	var out []string
	for _, w := range splitWords(memory.Fold(text)) {
		if utf8.RuneCountInString(w) < 3 || temporalStopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func wordCoverage(r *memory.Record, words []string) float64 {
	text := memory.Fold(r.Content + " " + r.Summary)
	hit := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hit++
		}
	}
	return float64(hit) / float64(len(words))
}
