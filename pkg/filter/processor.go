package filter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goclaw/recall/pkg/search"
)

const (
	// Post-filter blend: score' = scoreWeight*score + filterWeight*filterScore.
	scoreWeight  = 0.7
	filterWeight = 0.3

	// temporalBoost is added per satisfied time predicate, scaled by how
	// recent the result is within temporalHorizon.
	temporalBoost   = 0.1
	temporalHorizon = 30 * 24 * time.Hour

	// selectiveCandidates stops the pre-filter stage once this few
	// candidates remain.
	selectiveCandidates = 10

	defaultCompiledCacheSize = 256
)

// Logger is the logging interface used by the processor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Processor.
type Options struct {
	Logger Logger
	Now    func() time.Time
	// CacheSize bounds the compiled-expression cache.
	CacheSize int
}

// Processor applies filter expressions and templates to result sets. It
// is safe for concurrent use.
type Processor struct {
	logger   Logger
	now      func() time.Time
	compiled *lru.Cache[string, Node]

	mu        sync.RWMutex
	templates map[string]Template
}

// NewProcessor returns a processor with the built-in templates registered.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCompiledCacheSize
	}
	cache, err := lru.New[string, Node](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("filter: create expression cache: %w", err)
	}
	p := &Processor{
		logger:    opts.Logger,
		now:       opts.Now,
		compiled:  cache,
		templates: make(map[string]Template),
	}
	for _, t := range BuiltinTemplates() {
		if err := p.RegisterTemplate(t); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Compile parses and optimises expr, reusing earlier compilations.
func (p *Processor) Compile(expr string) (Node, error) {
	key := strings.TrimSpace(expr)
	if n, ok := p.compiled.Get(key); ok {
		return n, nil
	}
	n, err := Parse(key)
	if err != nil {
		return nil, err
	}
	n = Optimize(n)
	p.compiled.Add(key, n)
	return n, nil
}

// Apply keeps the results satisfying expr, re-scores them and sorts them
// by score descending. The input slice is not modified.
func (p *Processor) Apply(ctx context.Context, results []search.Result, expr string) ([]search.Result, error) {
	n, err := p.Compile(expr)
	if err != nil {
		return nil, err
	}
	now := p.now()

	candidates := p.prefilter(n, results)
	out := make([]search.Result, 0, len(candidates))
	for _, i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := results[i]
		if r.IsError() || !Evaluate(n, r, now) {
			continue
		}
		r.Score = search.ClampScore(scoreWeight*r.Score + filterWeight*FilterScore(n, r, now))
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Matches reports whether a single result satisfies expr.
func (p *Processor) Matches(r search.Result, expr string) (bool, error) {
	n, err := p.Compile(expr)
	if err != nil {
		return false, err
	}
	return Evaluate(n, r, p.now()), nil
}

// prefilter narrows the candidate positions with the indexed equality
// conjuncts of n before the full expression is evaluated.
func (p *Processor) prefilter(n Node, results []search.Result) []int {
	all := make([]int, len(results))
	for i := range results {
		all[i] = i
	}
	conjuncts := indexedConjuncts(n)
	if len(conjuncts) == 0 || len(results) == 0 {
		return all
	}

	index := map[string]map[string][]int{}
	candidates := all
	for _, c := range conjuncts {
		byValue, ok := index[c.Field]
		if !ok {
			byValue = map[string][]int{}
			for i, r := range results {
				v, _ := r.Field(c.Field)
				key := search.ToString(v)
				byValue[key] = append(byValue[key], i)
			}
			index[c.Field] = byValue
		}
		candidates = intersect(candidates, byValue[c.Value.Str])
		if len(candidates) == 0 {
			p.logger.Debug("filter pre-filter emptied candidate set", "field", c.Field, "value", c.Value.Str)
			return candidates
		}
		if len(candidates) <= selectiveCandidates && len(candidates) < len(results) {
			break
		}
	}
	return candidates
}

// intersect merges two ascending position lists.
func intersect(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// FilterScore is the fraction of leaf predicates r satisfies, plus a
// recency boost for satisfied time predicates, clamped to [0,1]. Leaves
// under NOT count as satisfied when their comparison fails.
func FilterScore(n Node, r search.Result, now time.Time) float64 {
	var total, satisfied int
	boost := 0.0
	var walk func(Node, bool)
	walk = func(n Node, negated bool) {
		switch t := n.(type) {
		case *And:
			for _, c := range t.Children {
				walk(c, negated)
			}
		case *Or:
			for _, c := range t.Children {
				walk(c, negated)
			}
		case *Not:
			walk(t.Child, !negated)
		case *Comparison:
			total++
			if t.Match(r, now) != negated {
				satisfied++
				if t.temporal() {
					boost += temporalBoost * recency(r.Metadata.CreatedAt, now)
				}
			}
		}
	}
	walk(n, false)
	if total == 0 {
		return 0
	}
	return search.ClampScore(float64(satisfied)/float64(total) + boost)
}

func recency(created, now time.Time) float64 {
	if created.IsZero() {
		return 0
	}
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	return max(0, 1-float64(age)/float64(temporalHorizon))
}
