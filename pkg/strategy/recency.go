package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Windows understood by the recency strategy.
var recencyWindows = map[string]time.Duration{
	"recent": time.Hour,
	"today":  24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
}

// Recency returns the newest records inside a time window.
type Recency struct {
	base
}

// NewRecency builds the recency strategy.
func NewRecency(store memory.Store, cfg strategyconfig.StrategyConfig) *Recency {
	return &Recency{
		base: newBase(strategyconfig.Recency,
			"Newest records within a recent, today, week or month window",
			store, cfg,
			search.CapSorting, search.CapFiltering),
	}
}

func requestedWindow(q search.Query) (string, bool) {
	if w, ok := q.FilterString("time_window"); ok {
		return strings.ToLower(w), true
	}
	if w, ok := q.ContextString("time_window"); ok {
		return strings.ToLower(w), true
	}
	return "", false
}

// CanHandle accepts queries naming a time window and browse queries
// without text.
func (s *Recency) CanHandle(q search.Query) bool {
	if _, ok := requestedWindow(q); ok {
		return true
	}
	return !q.HasText()
}

func (s *Recency) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	name, ok := requestedWindow(q)
	if !ok {
		name = s.stringOpt("default_window", "week")
	}
	window, ok := recencyWindows[name]
	if !ok {
		return nil, search.NewValidationError("time_window", "unknown window %q (want recent, today, week or month)", name)
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}

	cutoff := window
	if maxAge := time.Duration(s.intOpt("max_age_days", 365)) * 24 * time.Hour; maxAge > 0 && maxAge < cutoff {
		cutoff = maxAge
	}
	now := s.now()
	limit := s.fetchLimit(q)
	records, err := s.store.Records(ctx, memory.RecordFilter{
		Types: types,
		Since: now.Add(-cutoff),
		Until: now,
		Limit: limit,
	})
	if err != nil {
		return nil, search.WrapBackend("recency scan", err)
	}

	results := make([]search.Result, 0, len(records))
	for _, r := range records {
		results = append(results, s.result(r, s.recencyFactor(r.CreatedAt, window)))
	}
	return sortAndTrim(results, limit), nil
}
