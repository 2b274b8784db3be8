package filter

import (
	"strings"
	"time"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
)

// Evaluate reports whether r satisfies the expression at time now.
func Evaluate(n Node, r search.Result, now time.Time) bool {
	switch t := n.(type) {
	case *And:
		for _, c := range t.Children {
			if !Evaluate(c, r, now) {
				return false
			}
		}
		return true
	case *Or:
		for _, c := range t.Children {
			if Evaluate(c, r, now) {
				return true
			}
		}
		return false
	case *Not:
		return !Evaluate(t.Child, r, now)
	case *Comparison:
		return t.Match(r, now)
	}
	return false
}

// Match evaluates a single comparison. A missing field satisfies only !=.
func (c *Comparison) Match(r search.Result, now time.Time) bool {
	actual, ok := r.Field(c.Field)
	if !ok || actual == nil {
		return c.Op == OpNe
	}
	want := c.Value.Resolve(now)

	switch c.Op {
	case OpEq:
		return equalValues(actual, want)
	case OpNe:
		return !equalValues(actual, want)
	case OpLike:
		return likeMatch(actual, search.ToString(want))
	case OpContains:
		return containsMatch(actual, want)
	}

	cmp, ok := orderValues(actual, want)
	if !ok {
		return false
	}
	switch c.Op {
	case OpGt:
		return cmp > 0
	case OpLt:
		return cmp < 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// asTime accepts time values and RFC 3339 strings.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	}
	return time.Time{}, false
}

func equalValues(actual, want any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if equalValues(item, want) {
				return true
			}
		}
		return false
	}
	if wt, ok := want.(time.Time); ok {
		at, ok := asTime(actual)
		return ok && at.Equal(wt)
	}
	if wf, ok := search.ToFloat(want); ok {
		af, ok := search.CoerceFloat(actual)
		return ok && af == wf
	}
	if wb, ok := want.(bool); ok {
		ab, ok := search.CoerceBool(actual)
		return ok && ab == wb
	}
	return search.ToString(actual) == search.ToString(want)
}

// orderValues compares numerically, chronologically or lexically, in that
// order of preference. It fails when the value kinds cannot be ordered.
func orderValues(actual, want any) (int, bool) {
	if wt, ok := want.(time.Time); ok {
		at, ok := asTime(actual)
		if !ok {
			return 0, false
		}
		return at.Compare(wt), true
	}
	if wf, ok := search.ToFloat(want); ok {
		af, ok := search.CoerceFloat(actual)
		if !ok {
			return 0, false
		}
		return search.CompareValues(af, wf), true
	}
	if _, ok := want.(bool); ok {
		return 0, false
	}
	return strings.Compare(search.ToString(actual), search.ToString(want)), true
}

// likeMatch is a case-insensitive substring test. Lists match when any
// element does.
func likeMatch(actual any, want string) bool {
	switch v := actual.(type) {
	case []any:
		for _, item := range v {
			if likeMatch(item, want) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if memory.ContainsFold(item, want) {
				return true
			}
		}
		return false
	}
	return memory.ContainsFold(search.ToString(actual), want)
}

// containsMatch is a case-sensitive substring test for strings and a
// membership test for lists.
func containsMatch(actual, want any) bool {
	switch v := actual.(type) {
	case []any:
		for _, item := range v {
			if equalValues(item, want) {
				return true
			}
		}
		return false
	case []string:
		s := search.ToString(want)
		for _, item := range v {
			if item == s {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(v, search.ToString(want))
	}
	return strings.Contains(search.ToString(actual), search.ToString(want))
}
