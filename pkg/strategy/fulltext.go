package strategy

import (
	"context"
	"errors"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// ErrIndexUnavailable is returned when the store has no inverted index.
var ErrIndexUnavailable = errors.New("full-text index unavailable")

// FullText ranks records through the store's inverted index with
// per-field weights.
type FullText struct {
	base
	searcher memory.TextSearcher
}

// NewFullText builds the full-text strategy. It can only handle queries
// when store implements memory.TextSearcher.
func NewFullText(store memory.Store, cfg strategyconfig.StrategyConfig) *FullText {
	ts, _ := store.(memory.TextSearcher)
	return &FullText{
		base: newBase(strategyconfig.FullText,
			"Field-weighted BM25 ranking over summary, content and category",
			store, cfg,
			search.CapKeywordSearch, search.CapRelevanceScoring, search.CapSorting),
		searcher: ts,
	}
}

func (s *FullText) CanHandle(q search.Query) bool {
	return s.searcher != nil && q.HasText()
}

func (s *FullText) weights() memory.FieldWeights {
	def := memory.DefaultFieldWeights()
	return memory.FieldWeights{
		Title:    s.floatOpt("title_weight", def.Title),
		Content:  s.floatOpt("content_weight", def.Content),
		Category: s.floatOpt("category_weight", def.Category),
	}
}

func (s *FullText) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	if !q.HasText() {
		return nil, search.NewValidationError("text", "search text must not be empty")
	}
	if s.searcher == nil {
		return nil, &search.BackendError{Op: "fulltext search", Err: ErrIndexUnavailable}
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}

	limit := s.fetchLimit(q)
	hits, err := s.searcher.SearchText(ctx, memory.TextQuery{
		Text:    q.Text,
		Weights: s.weights(),
		Types:   types,
		Limit:   limit * 2,
	})
	if err != nil {
		return nil, search.WrapBackend("fulltext search", err)
	}

	minScore := s.floatOpt("min_score", 0)
	results := make([]search.Result, 0, len(hits))
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.store.Get(ctx, hit.ID)
		if errors.Is(err, memory.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, search.WrapBackend("get", err)
		}
		score := search.ClampScore(normalizeBM25(hit.Score) * s.cfg.Scoring.BaseWeight)
		if score < minScore {
			continue
		}
		res := s.result(rec, score)
		if res.Metadata.Extra == nil {
			res.Metadata.Extra = map[string]any{}
		}
		res.Metadata.Extra["bm25"] = hit.Score
		results = append(results, res)
	}
	return sortAndTrim(results, limit), nil
}

// normalizeBM25 maps a non-negative raw score into [0,1).
func normalizeBM25(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (1 + raw)
}
