package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func result(id, category string, mt memory.MemoryType, importance, score float64, age time.Duration, extra map[string]any) search.Result {
	return search.Result{
		ID:      id,
		Content: "content of " + id,
		Score:   score,
		Metadata: search.ResultMetadata{
			Category:   category,
			Importance: importance,
			MemoryType: mt,
			CreatedAt:  now.Add(-age),
			Extra:      extra,
		},
		Strategy: "substring",
	}
}

func fixture() []search.Result {
	day := 24 * time.Hour
	return []search.Result{
		result("go", "work/go", memory.LongTerm, 0.9, 0.8, 2*day, map[string]any{"tags": []any{"golang", "Concurrency"}, "source": map[string]any{"kind": "book"}}),
		result("ts", "work/frontend", memory.ShortTerm, 0.4, 0.6, time.Hour, map[string]any{"tags": []any{"typescript"}}),
		result("shop", "personal", memory.ShortTerm, 0.2, 0.9, 20*day, nil),
		result("old", "work/go", memory.LongTerm, 0.7, 0.5, 90*day, nil),
	}
}

func ids(results []search.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	return p
}

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{`category = "work"`, `category = "work"`},
		{`importance >= 0.5 and score < 1`, `(importance >= 0.5 AND score < 1)`},
		{`a = 1 OR b = 2 AND c = 3`, `(a = 1 OR (b = 2 AND c = 3))`},
		{`NOT (a = 1 OR b = 2)`, `NOT (a = 1 OR b = 2)`},
		{`created_at > now-7d`, `created_at > now-7d`},
		{`created_at > 2025-01-01`, `created_at > 2025-01-01`},
		{`tags CONTAINS "go"`, `tags CONTAINS "go"`},
		{`content ~ 'Hello'`, `content ~ "Hello"`},
		{`reviewed = true`, `reviewed = true`},
		{`memory_type = short_term`, `memory_type = "short_term"`},
		{`source.kind != "web"`, `source.kind != "web"`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			n, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		expr    string
		message string
	}{
		{"", "empty"},
		{"(a = 1", "unbalanced"},
		{"a = 1)", "unbalanced"},
		{"a == 1", "unsupported operator"},
		{"a LIKE 1", "expected an operator"},
		{"a = ", "expected a value"},
		{"= 1", "expected a field name"},
		{`a = "open`, "unterminated string"},
		{"a = {x}", "only allowed in templates"},
		{"created_at > now-7y", "invalid relative time"},
		{"a = 1 b = 2", "unexpected"},
		{"a = 12abc", "invalid literal"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := Validate(tt.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, search.ErrValidation)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestComparison_Match(t *testing.T) {
	r := fixture()[0]
	tests := []struct {
		expr string
		want bool
	}{
		{`category = "work/go"`, true},
		{`category != "work/go"`, false},
		{`importance > 0.5`, true},
		{`importance <= 0.5`, false},
		{`created_at > now-7d`, true},
		{`created_at > now-1d`, false},
		{`created_at >= 2025-06-01`, true},
		{`category ~ "WORK"`, true},
		{`category CONTAINS "WORK"`, false},
		{`tags CONTAINS "golang"`, true},
		{`tags CONTAINS "Golang"`, false},
		{`tags ~ "concurrency"`, true},
		{`source.kind = "book"`, true},
		{`metadata.source.kind = "book"`, true},
		{`missing = 1`, false},
		{`missing != 1`, true},
		{`memory_type = long_term`, true},
		{`NOT category = "personal"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			n, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Evaluate(n, r, now))
		})
	}
}

func TestOptimize(t *testing.T) {
	n, err := Parse(`content ~ "x" AND importance > 0.5 AND (category = "a" AND NOT NOT memory_type = "short_term")`)
	require.NoError(t, err)
	opt := Optimize(n)
	assert.Equal(t, `(category = "a" AND memory_type = "short_term" AND importance > 0.5 AND content ~ "x")`, opt.String())

	for _, r := range fixture() {
		assert.Equal(t, Evaluate(n, r, now), Evaluate(opt, r, now), r.ID)
	}
}

func TestProcessor_Apply(t *testing.T) {
	p := newProcessor(t)
	ctx := context.Background()
	in := fixture()

	out, err := p.Apply(ctx, in, `category ~ "work" AND importance >= 0.5`)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "old"}, ids(out))
	for _, r := range out {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.InDelta(t, 0.7*0.8+0.3*1.0, out[0].Score, 1e-9)
	assert.Equal(t, 0.8, in[0].Score, "input untouched")

	out, err = p.Apply(ctx, in, `category = "personal" OR importance > 0.8`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shop", "go"}, ids(out))
	assert.InDelta(t, 0.7*0.9+0.3*0.5, scoreOf(out, "shop"), 1e-9, "one of two leaves satisfied")

	out, err = p.Apply(ctx, in, `memory_type = "long_term" AND category = "nowhere"`)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = p.Apply(ctx, in, "(broken")
	assert.ErrorIs(t, err, search.ErrValidation)
}

func scoreOf(results []search.Result, id string) float64 {
	for _, r := range results {
		if r.ID == id {
			return r.Score
		}
	}
	return -1
}

func TestProcessor_TemporalBoost(t *testing.T) {
	p := newProcessor(t)
	out, err := p.Apply(context.Background(), fixture(), `created_at > now-30d`)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"go", "ts", "shop"}, ids(out))
	// ts: one hour old, satisfied leaf 1.0 plus boost, clamped.
	assert.InDelta(t, 0.7*0.6+0.3*1.0, scoreOf(out, "ts"), 1e-9)
}

func TestProcessor_Idempotent(t *testing.T) {
	p := newProcessor(t)
	ctx := context.Background()
	exprs := []string{
		`category ~ "work"`,
		`importance > 0.3 AND NOT memory_type = "short_term"`,
		`created_at > now-30d OR tags CONTAINS "golang"`,
	}
	for _, expr := range exprs {
		once, err := p.Apply(ctx, fixture(), expr)
		require.NoError(t, err)
		twice, err := p.Apply(ctx, once, expr)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids(once), ids(twice), expr)
	}
}

func TestProcessor_Prefilter(t *testing.T) {
	p := newProcessor(t)
	results := make([]search.Result, 0, 40)
	for i := 0; i < 40; i++ {
		cat := "bulk"
		if i%10 == 0 {
			cat = "rare"
		}
		results = append(results, result(string(rune('a'+i%26))+string(rune('0'+i/26)), cat, memory.LongTerm, 0.5, 0.5, time.Hour, nil))
	}
	n, err := p.Compile(`category = "rare" AND importance > 0.1`)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30}, p.prefilter(n, results))

	n, err = p.Compile(`category = "none" AND memory_type = "long_term"`)
	require.NoError(t, err)
	assert.Empty(t, p.prefilter(n, results))

	n, err = p.Compile(`importance > 0.1`)
	require.NoError(t, err)
	assert.Len(t, p.prefilter(n, results), 40)
}

func TestProcessor_SkipsErrorResults(t *testing.T) {
	p := newProcessor(t)
	in := append(fixture(), search.ErrorResult("fulltext", assert.AnError))
	out, err := p.Apply(context.Background(), in, `missing != 1`)
	require.NoError(t, err)
	assert.Len(t, out, len(in)-1)
}

func TestTemplates(t *testing.T) {
	p := newProcessor(t)
	ctx := context.Background()

	names := make([]string, 0)
	for _, tpl := range p.Templates() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"category_within_days", "high_confidence", "recent_and_important", "short_term_only"}, names)

	out, err := p.ApplyTemplate(ctx, fixture(), "recent_and_important", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, ids(out))

	out, err = p.ApplyTemplate(ctx, fixture(), "category_within_days", map[string]string{"category": "work/go", "days": "120"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"go", "old"}, ids(out))

	_, err = p.ApplyTemplate(ctx, fixture(), "category_within_days", nil)
	assert.ErrorIs(t, err, search.ErrValidation)

	_, err = p.ApplyTemplate(ctx, fixture(), "high_confidence", map[string]string{"bogus": "1"})
	assert.ErrorIs(t, err, search.ErrValidation)

	out, err = p.ApplyTemplate(ctx, fixture(), "short_term_only", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ts", "shop"}, ids(out))

	_, err = p.ApplyTemplate(ctx, fixture(), "nope", nil)
	assert.ErrorIs(t, err, search.ErrValidation)
}

func TestTemplate_Validate(t *testing.T) {
	tests := []struct {
		name string
		tpl  Template
		ok   bool
	}{
		{"valid", Template{Name: "t", Expression: "score >= {min}", Params: []Param{{Name: "min", Kind: ParamNumber, Default: "0.5"}}}, true},
		{"undeclared", Template{Name: "t", Expression: "score >= {min}"}, false},
		{"unused", Template{Name: "t", Expression: "score >= 1", Params: []Param{{Name: "min", Required: true}}}, false},
		{"optional without default", Template{Name: "t", Expression: "score >= {min}", Params: []Param{{Name: "min", Kind: ParamNumber}}}, false},
		{"bad syntax", Template{Name: "t", Expression: "score >= ({min}", Params: []Param{{Name: "min", Kind: ParamNumber, Required: true}}}, false},
		{"no name", Template{Expression: "score >= 1"}, false},
		{"non-numeric default", Template{Name: "t", Expression: "score >= {min}", Params: []Param{{Name: "min", Kind: ParamNumber, Default: "high"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tpl.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, search.ErrValidation)
			}
		})
	}
}

func TestTemplate_ExpandEscapesQuotes(t *testing.T) {
	tpl := BuiltinTemplates()[1]
	expr, err := tpl.Expand(map[string]string{"category": `a"b`})
	require.NoError(t, err)
	assert.Equal(t, `category = "a\"b" AND created_at >= now-30d`, expr)
}

func TestTemplate_ExpandRejectsNonNumericNumbers(t *testing.T) {
	p := newProcessor(t)
	ctx := context.Background()

	for _, v := range []string{`0 OR id != ""`, "abc", "NaN", "1e999", ""} {
		_, err := p.ExpandTemplate("high_confidence", map[string]string{"min_score": v})
		assert.ErrorIs(t, err, search.ErrValidation, v)
	}

	expr, err := p.ExpandTemplate("high_confidence", map[string]string{"min_score": "0.95"})
	require.NoError(t, err)
	assert.Equal(t, "score >= 0.95", expr)

	out, err := p.ApplyTemplate(ctx, fixture(), "high_confidence", map[string]string{"min_score": "2"})
	require.NoError(t, err)
	assert.Empty(t, out)
}
