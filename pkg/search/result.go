package search

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goclaw/recall/pkg/memory"
)

// MaxSnippetLength bounds Result.Content in runes.
const MaxSnippetLength = 500

// ResultMetadata describes the record behind a result.
type ResultMetadata struct {
	Category   string            `json:"category,omitempty"`
	Importance float64           `json:"importance"`
	MemoryType memory.MemoryType `json:"memory_type,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Extra      map[string]any    `json:"extra,omitempty"`
}

// Result is one ranked hit.
type Result struct {
	ID        string         `json:"id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Metadata  ResultMetadata `json:"metadata"`
	Score     float64        `json:"score"`
	Strategy  string         `json:"strategy"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// ClampScore maps any value into [0,1]. NaN becomes 0.
func ClampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s <= 0:
		return 0
	case s >= 1:
		return 1
	default:
		return s
	}
}

// NewResult builds a result for a record. The score is clamped and the
// record's metadata map is copied into Extra.
func NewResult(r *memory.Record, score float64, strategy string) Result {
	var extra map[string]any
	if len(r.Metadata) > 0 {
		extra = r.Clone().Metadata
	}
	return Result{
		ID:      r.ID,
		Content: Snippet(r.Content, MaxSnippetLength),
		Metadata: ResultMetadata{
			Category:   r.Category,
			Importance: r.Importance,
			MemoryType: r.MemoryType,
			CreatedAt:  r.CreatedAt,
			Extra:      extra,
		},
		Score:     ClampScore(score),
		Strategy:  strategy,
		Timestamp: time.Now(),
	}
}

// ErrorResult reports a failure in-band. It carries no id, no content and
// a zero score.
func ErrorResult(strategy string, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Strategy: strategy, Timestamp: time.Now(), Error: msg}
}

// IsError reports whether the result is an in-band failure.
func (r Result) IsError() bool { return r.Error != "" }

// Snippet truncates s to at most n runes, appending an ellipsis when cut.
func Snippet(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

// Field resolves a named field for filtering and sorting. Unknown names are
// looked up in Extra, with dots walking nested maps.
func (r Result) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "content":
		return r.Content, true
	case "score":
		return r.Score, true
	case "strategy":
		return r.Strategy, true
	case "category":
		return r.Metadata.Category, true
	case "importance":
		return r.Metadata.Importance, true
	case "memory_type":
		return string(r.Metadata.MemoryType), true
	case "created_at":
		return r.Metadata.CreatedAt, true
	}
	name = strings.TrimPrefix(name, "metadata.")
	return LookupPath(r.Metadata.Extra, name)
}

// LookupPath walks a dotted path through nested maps.
func LookupPath(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SortResults orders results in place. Without a spec the order is score
// descending, then importance, then newest first, then id.
func SortResults(results []Result, spec *SortSpec) {
	sort.SliceStable(results, func(i, j int) bool {
		if spec != nil && spec.Field != "" {
			a, _ := results[i].Field(spec.Field)
			b, _ := results[j].Field(spec.Field)
			if c := CompareValues(a, b); c != 0 {
				if spec.Direction == SortAsc {
					return c < 0
				}
				return c > 0
			}
		}
		return defaultLess(results[i], results[j])
	})
}

func defaultLess(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Metadata.Importance != b.Metadata.Importance {
		return a.Metadata.Importance > b.Metadata.Importance
	}
	if !a.Metadata.CreatedAt.Equal(b.Metadata.CreatedAt) {
		return a.Metadata.CreatedAt.After(b.Metadata.CreatedAt)
	}
	return a.ID < b.ID
}

// CompareValues orders two field values: numbers numerically, times
// chronologically, everything else by its string form. Missing values sort
// first.
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(ToString(a), ToString(b))
}

// Paginate applies offset and limit.
func Paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return []Result{}
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
