// Package search defines the contract shared by the strategies, the filter
// processor, the error handler and the engine: queries, results, strategy
// metadata and the typed error taxonomy.
package search

import (
	"fmt"
	"strings"
)

// Limits applied to a query's pagination.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// SortDirection orders results on a field.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec sorts results on a result field. Field uses the same names as
// filter expressions (score, importance, created_at, category, ...).
type SortSpec struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Query is one search request. A Query is treated as immutable once handed
// to the engine; use Clone before changing a shared value.
type Query struct {
	Text string `json:"text"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Filters holds structured key/value constraints consumed by the
	// structured strategies (category, time_window, date, metadata, ...).
	Filters map[string]any `json:"filters,omitempty"`

	Sort *SortSpec `json:"sort,omitempty"`

	// FilterExpression is applied by the filter processor after retrieval.
	FilterExpression string `json:"filter_expression,omitempty"`

	// FilterTemplate expands a registered filter template. The expansion
	// is ANDed with FilterExpression.
	FilterTemplate *TemplateRef `json:"filter_template,omitempty"`

	// Context carries caller hints such as start_id for graph traversal.
	Context map[string]any `json:"context,omitempty"`
}

// TemplateRef names a filter template and the arguments to expand it with.
type TemplateRef struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Validate checks pagination and sort settings.
func (q Query) Validate() error {
	if q.Limit < 0 {
		return NewValidationError("limit", "must not be negative, got %d", q.Limit)
	}
	if q.Limit > MaxLimit {
		return NewValidationError("limit", "must not exceed %d, got %d", MaxLimit, q.Limit)
	}
	if q.Offset < 0 {
		return NewValidationError("offset", "must not be negative, got %d", q.Offset)
	}
	if q.FilterTemplate != nil && strings.TrimSpace(q.FilterTemplate.Name) == "" {
		return NewValidationError("filter_template.name", "is required")
	}
	if q.Sort != nil {
		if strings.TrimSpace(q.Sort.Field) == "" {
			return NewValidationError("sort.field", "is required")
		}
		switch q.Sort.Direction {
		case "", SortAsc, SortDesc:
		default:
			return NewValidationError("sort.direction", "must be asc or desc, got %q", q.Sort.Direction)
		}
	}
	return nil
}

// EffectiveLimit returns the page size to use.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Clone copies the query including its maps (one level deep).
func (q Query) Clone() Query {
	out := q
	if q.Filters != nil {
		out.Filters = make(map[string]any, len(q.Filters))
		for k, v := range q.Filters {
			out.Filters[k] = v
		}
	}
	if q.Context != nil {
		out.Context = make(map[string]any, len(q.Context))
		for k, v := range q.Context {
			out.Context[k] = v
		}
	}
	if q.Sort != nil {
		s := *q.Sort
		out.Sort = &s
	}
	if q.FilterTemplate != nil {
		ref := TemplateRef{Name: q.FilterTemplate.Name}
		if q.FilterTemplate.Args != nil {
			ref.Args = make(map[string]string, len(q.FilterTemplate.Args))
			for k, v := range q.FilterTemplate.Args {
				ref.Args[k] = v
			}
		}
		out.FilterTemplate = &ref
	}
	return out
}

// HasText reports whether the query carries non-blank search text.
func (q Query) HasText() bool {
	return strings.TrimSpace(q.Text) != ""
}

// Filter returns a structured filter value.
func (q Query) Filter(key string) (any, bool) {
	v, ok := q.Filters[key]
	return v, ok
}

// FilterString returns a structured filter value rendered as a string.
func (q Query) FilterString(key string) (string, bool) {
	return stringValue(q.Filters, key)
}

// ContextString returns a context hint rendered as a string.
func (q Query) ContextString(key string) (string, bool) {
	return stringValue(q.Context, key)
}

func stringValue(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Complexity buckets queries for the performance monitor.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Complexity scores the query by its word count, structured filters, sort
// spec and the boolean connectives of its filter expression.
func (q Query) Complexity() Complexity {
	points := len(strings.Fields(q.Text))
	points += 2 * len(q.Filters)
	if q.Sort != nil {
		points++
	}
	if expr := strings.TrimSpace(q.FilterExpression); expr != "" {
		points += 3
		upper := strings.ToUpper(expr)
		points += strings.Count(upper, " AND ") + strings.Count(upper, " OR ") + strings.Count(upper, "NOT ")
	}
	switch {
	case points <= 3:
		return ComplexitySimple
	case points <= 8:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
