package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToFloat converts numeric values decoded from JSON or built in Go.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// CoerceFloat is ToFloat that also parses numeric strings.
func CoerceFloat(v any) (float64, bool) {
	if f, ok := ToFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

// CoerceBool accepts bools and the strings true/false/1/0/yes/no.
func CoerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	if f, ok := ToFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// ToString renders a value for text comparison.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return s.String()
	}
	if f, ok := ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// ToStringSlice accepts a string, []string or []any of strings.
func ToStringSlice(v any) []string {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str := ToString(item); str != "" {
				out = append(out, str)
			}
		}
		return out
	}
	return []string{ToString(v)}
}

// IntOption reads an integer tunable from a strategy-specific map.
func IntOption(m map[string]any, key string, def int) int {
	if f, ok := CoerceFloat(m[key]); ok {
		return int(f)
	}
	return def
}

// FloatOption reads a float tunable from a strategy-specific map.
func FloatOption(m map[string]any, key string, def float64) float64 {
	if f, ok := CoerceFloat(m[key]); ok {
		return f
	}
	return def
}

// BoolOption reads a boolean tunable from a strategy-specific map.
func BoolOption(m map[string]any, key string, def bool) bool {
	if b, ok := CoerceBool(m[key]); ok {
		return b
	}
	return def
}

// StringOption reads a string tunable from a strategy-specific map.
func StringOption(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}
