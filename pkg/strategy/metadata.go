package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Filter keys consumed by other strategies; never treated as metadata
// predicates.
var reservedFilters = map[string]bool{
	"category":           true,
	"memory_type":        true,
	"time_window":        true,
	"date":               true,
	"start":              true,
	"end":                true,
	"related_to":         true,
	"relationship_types": true,
	"traversal":          true,
	"metadata":           true,
}

// predicate compares one dotted metadata path. A map value holds
// operators ($eq, $ne, $gt, $gte, $lt, $lte, $in, $exists); a list is
// shorthand for $in; anything else is $eq.
type predicate struct {
	path string
	ops  map[string]any
}

// Metadata evaluates predicates over the decoded metadata of each record.
type Metadata struct {
	base
}

// NewMetadata builds the metadata strategy.
func NewMetadata(store memory.Store, cfg strategyconfig.StrategyConfig) *Metadata {
	return &Metadata{
		base: newBase(strategyconfig.Metadata,
			"Nested metadata field predicates with optional strict typing",
			store, cfg,
			search.CapFiltering),
	}
}

func metadataPredicates(q search.Query) []predicate {
	raw := map[string]any{}
	if m, ok := q.Filters["metadata"].(map[string]any); ok {
		for k, v := range m {
			raw[k] = v
		}
	}
	for k, v := range q.Filters {
		if !reservedFilters[k] {
			raw[strings.TrimPrefix(k, "metadata.")] = v
		}
	}

	preds := make([]predicate, 0, len(raw))
	for path, v := range raw {
		p := predicate{path: path}
		switch val := v.(type) {
		case map[string]any:
			p.ops = val
		case []any, []string:
			p.ops = map[string]any{"$in": val}
		default:
			p.ops = map[string]any{"$eq": val}
		}
		preds = append(preds, p)
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i].path < preds[j].path })
	return preds
}

func (s *Metadata) CanHandle(q search.Query) bool {
	return len(metadataPredicates(q)) > 0
}

func (s *Metadata) validate(preds []predicate) error {
	maxDepth := s.intOpt("max_depth", 5)
	for _, p := range preds {
		if p.path == "" {
			return search.NewValidationError("filters.metadata", "empty field path")
		}
		if depth := len(strings.Split(p.path, ".")); depth > maxDepth {
			return search.NewValidationError("filters.metadata."+p.path, "path depth %d exceeds max_depth %d", depth, maxDepth)
		}
		for op := range p.ops {
			switch op {
			case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$in", "$exists":
			default:
				return search.NewValidationError("filters.metadata."+p.path, "unknown operator %q", op)
			}
		}
	}
	return nil
}

func (s *Metadata) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	preds := metadataPredicates(q)
	if len(preds) == 0 {
		return nil, search.NewValidationError("filters.metadata", "at least one metadata predicate is required")
	}
	if err := s.validate(preds); err != nil {
		return nil, err
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}

	records, err := s.store.Records(ctx, memory.RecordFilter{Types: types})
	if err != nil {
		return nil, search.WrapBackend("metadata scan", err)
	}

	strict := s.boolOpt("strict_types", false)
	var results []search.Result
	for _, r := range records {
		matched := 0
		for _, p := range preds {
			if evalPredicate(r.Metadata, p, strict) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		ratio := float64(matched) / float64(len(preds))
		res := s.result(r, s.importanceBlend(ratio, r.Importance))
		results = append(results, res)
	}
	if results == nil {
		results = []search.Result{}
	}
	return sortAndTrim(results, s.fetchLimit(q)), nil
}

func evalPredicate(meta map[string]any, p predicate, strict bool) bool {
	actual, present := search.LookupPath(meta, p.path)
	for op, want := range p.ops {
		var ok bool
		switch op {
		case "$exists":
			exists, _ := search.CoerceBool(want)
			ok = present == exists
		case "$eq":
			ok = present && valuesEqual(actual, want, strict)
		case "$ne":
			ok = !present || !valuesEqual(actual, want, strict)
		case "$in":
			ok = false
			for _, item := range toList(want) {
				if present && valuesEqual(actual, item, strict) {
					ok = true
					break
				}
			}
		case "$gt", "$gte", "$lt", "$lte":
			ok = present && compareOrdered(actual, want, op, strict)
		}
		if !ok {
			return false
		}
	}
	return true
}

func toList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// jsonKind names the JSON type of a decoded value.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := search.ToFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func valuesEqual(actual, want any, strict bool) bool {
	if strict && jsonKind(actual) != jsonKind(want) {
		return false
	}
	if af, ok := search.ToFloat(actual); ok {
		if wf, ok := coerceNumber(want, strict); ok {
			return af == wf
		}
		return false
	}
	switch a := actual.(type) {
	case bool:
		if strict {
			return a == want
		}
		wb, ok := search.CoerceBool(want)
		return ok && a == wb
	case string:
		if strict {
			return a == want
		}
		if wf, ok := search.ToFloat(want); ok {
			af, ok := search.CoerceFloat(a)
			return ok && af == wf
		}
		if wb, ok := want.(bool); ok {
			ab, ok := search.CoerceBool(a)
			return ok && ab == wb
		}
		return strings.EqualFold(a, search.ToString(want))
	case nil:
		return want == nil
	}
	return search.ToString(actual) == search.ToString(want)
}

func coerceNumber(v any, strict bool) (float64, bool) {
	if strict {
		return search.ToFloat(v)
	}
	return search.CoerceFloat(v)
}

func compareOrdered(actual, want any, op string, strict bool) bool {
	var c int
	af, aok := coerceNumber(actual, strict)
	wf, wok := coerceNumber(want, strict)
	switch {
	case aok && wok:
		c = search.CompareValues(af, wf)
	case strict && jsonKind(actual) != jsonKind(want):
		return false
	default:
		c = strings.Compare(search.ToString(actual), search.ToString(want))
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}
