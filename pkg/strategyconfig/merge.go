package strategyconfig

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// deepBlocks are merged key by key; every other top-level key is replaced.
var deepBlocks = map[string]bool{
	"performance":       true,
	"scoring":           true,
	"strategy_specific": true,
}

// Merge applies overrides on top of base. Top-level scalars are replaced;
// the performance, scoring and strategy_specific blocks are merged
// recursively. The name cannot be changed. The result is not validated.
func Merge(base StrategyConfig, overrides map[string]any) (StrategyConfig, error) {
	if name, ok := overrides["name"]; ok && name != base.Name {
		return StrategyConfig{}, fmt.Errorf("strategyconfig: cannot rename %s to %v", base.Name, name)
	}
	m, err := toMap(base)
	if err != nil {
		return StrategyConfig{}, err
	}
	for k, v := range overrides {
		if deepBlocks[k] {
			if src, ok := v.(map[string]any); ok {
				dst, _ := m[k].(map[string]any)
				m[k] = deepMerge(dst, src)
				continue
			}
		}
		m[k] = v
	}
	out, err := fromMap(m)
	if err != nil {
		return StrategyConfig{}, fmt.Errorf("strategyconfig: merge %s: %w", base.Name, err)
	}
	return out, nil
}

func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = cloneValue(v)
	}
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(dm, sm)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// FieldChange is one field-level difference between two configurations.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// Diff lists the dotted fields that differ between old and new, sorted.
func Diff(old, new StrategyConfig) []FieldChange {
	a, errA := toMap(old)
	b, errB := toMap(new)
	if errA != nil || errB != nil {
		return nil
	}
	fa := map[string]any{}
	fb := map[string]any{}
	flatten("", a, fa)
	flatten("", b, fb)

	keys := map[string]struct{}{}
	for k := range fa {
		keys[k] = struct{}{}
	}
	for k := range fb {
		keys[k] = struct{}{}
	}

	var changes []FieldChange
	for k := range keys {
		if !reflect.DeepEqual(fa[k], fb[k]) {
			changes = append(changes, FieldChange{Field: k, Old: fa[k], New: fb[k]})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// summarize renders changes for an audit message.
func summarize(changes []FieldChange) string {
	if len(changes) == 0 {
		return "no changes"
	}
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s: %v -> %v", c.Field, c.Old, c.New))
	}
	return strings.Join(parts, ", ")
}
