package strategy

import (
	"context"
	"strings"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Category matches records by their slash-separated category path.
type Category struct {
	base
}

// NewCategory builds the category strategy.
func NewCategory(store memory.Store, cfg strategyconfig.StrategyConfig) *Category {
	return &Category{
		base: newBase(strategyconfig.Category,
			"Hierarchical category matching with optional subcategories",
			store, cfg,
			search.CapFiltering, search.CapCategorization),
	}
}

func requestedCategories(q search.Query) []string {
	v, ok := q.Filter("category")
	if !ok {
		return nil
	}
	var out []string
	for _, c := range search.ToStringSlice(v) {
		if c = strings.Trim(strings.TrimSpace(c), "/"); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Category) CanHandle(q search.Query) bool {
	return len(requestedCategories(q)) > 0
}

// truncatePath keeps at most depth segments of a category path.
func truncatePath(path string, depth int) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if depth > 0 && len(parts) > depth {
		parts = parts[:depth]
	}
	return parts
}

// categoryMatch scores a record category against a requested one: 1.0 for
// an exact match, 0.9-0.1*extraDepth (at least 0.5) for a descendant, 0
// otherwise.
func categoryMatch(recordCat, wanted string, depth int, subcategories bool) float64 {
	if recordCat == "" {
		return 0
	}
	have := truncatePath(recordCat, depth)
	want := truncatePath(wanted, depth)
	if len(have) < len(want) {
		return 0
	}
	for i := range want {
		if have[i] != want[i] {
			return 0
		}
	}
	extra := len(have) - len(want)
	if extra == 0 {
		return 1.0
	}
	if !subcategories {
		return 0
	}
	return max(0.5, 0.9-0.1*float64(extra))
}

func (s *Category) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	wanted := requestedCategories(q)
	if len(wanted) == 0 {
		return nil, search.NewValidationError("filters.category", "at least one category is required")
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}
	depth := s.intOpt("max_hierarchy_depth", 5)
	subcategories := s.boolOpt("include_subcategories", true)

	best := map[string]float64{}
	byID := map[string]*memory.Record{}
	for _, w := range wanted {
		if len(truncatePath(w, 0)) > depth {
			w = strings.Join(truncatePath(w, depth), "/")
		}
		records, err := s.store.Records(ctx, memory.RecordFilter{Types: types, CategoryPrefix: w})
		if err != nil {
			return nil, search.WrapBackend("category scan", err)
		}
		for _, r := range records {
			m := categoryMatch(r.Category, w, depth, subcategories)
			if m == 0 {
				continue
			}
			if m > best[r.ID] {
				best[r.ID] = m
				byID[r.ID] = r
			}
		}
	}

	results := make([]search.Result, 0, len(best))
	for id, m := range best {
		r := byID[id]
		results = append(results, s.result(r, s.importanceBlend(m, r.Importance)))
	}
	return sortAndTrim(results, s.fetchLimit(q)), nil
}
