// Package cache stores raw strategy results keyed by strategy and query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/goclaw/recall/pkg/search"
)

// Cache is a strategy result cache. Keys come from Key.
type Cache interface {
	Get(ctx context.Context, key string) ([]search.Result, bool, error)
	Set(ctx context.Context, key string, results []search.Result) error
	// Purge drops every entry of one strategy, or all entries when
	// strategy is empty.
	Purge(ctx context.Context, strategy string) error
}

// Recorder counts cache lookups.
type Recorder interface {
	RecordCacheRequest(result string)
}

// keyed holds the parts of a query that influence a strategy's raw output.
// The filter expression and sort spec are applied after retrieval.
type keyed struct {
	Text    string         `json:"t"`
	Limit   int            `json:"l"`
	Offset  int            `json:"o"`
	Filters map[string]any `json:"f,omitempty"`
	Context map[string]any `json:"c,omitempty"`
}

// Key derives the cache key of q for strategy: "<strategy>:<sha256>".
// Map keys are marshalled in sorted order, so equal queries hash equally.
func Key(strategy string, q search.Query) string {
	raw, err := json.Marshal(keyed{
		Text:    strings.TrimSpace(q.Text),
		Limit:   q.EffectiveLimit(),
		Offset:  q.Offset,
		Filters: q.Filters,
		Context: q.Context,
	})
	if err != nil {
		// unmarshalable filter values; fall back to their printed form
		raw = []byte(q.Text + "\x00" + stringify(q.Filters) + "\x00" + stringify(q.Context))
	}
	sum := sha256.Sum256(raw)
	return strategy + ":" + hex.EncodeToString(sum[:])
}

func stringify(m map[string]any) string {
	b, err := json.Marshal(toStrings(m))
	if err != nil {
		return ""
	}
	return string(b)
}

func toStrings(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = search.ToString(v)
	}
	return out
}

// StrategyOf returns the strategy part of a key.
func StrategyOf(key string) string {
	s, _, _ := strings.Cut(key, ":")
	return s
}

func clone(results []search.Result) []search.Result {
	if results == nil {
		return nil
	}
	return append([]search.Result(nil), results...)
}
