package search

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/recall/pkg/memory"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3.2, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampScore(tt.in))
	}
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("substring", errors.New("boom"))
	assert.True(t, r.IsError())
	assert.Empty(t, r.ID)
	assert.Empty(t, r.Content)
	assert.Zero(t, r.Score)
	assert.Equal(t, "boom", r.Error)
}

func TestNewResultCopiesMetadata(t *testing.T) {
	rec := &memory.Record{
		ID: "r1", Content: "hello", MemoryType: memory.ShortTerm, Importance: 0.5,
		Metadata: map[string]any{"source": map[string]any{"kind": "chat"}},
	}
	res := NewResult(rec, 1.7, "recency")
	assert.Equal(t, 1.0, res.Score)

	v, ok := res.Field("source.kind")
	require.True(t, ok)
	assert.Equal(t, "chat", v)

	res.Metadata.Extra["source"].(map[string]any)["kind"] = "changed"
	assert.Equal(t, "chat", rec.Metadata["source"].(map[string]any)["kind"])
}

func TestSortResults(t *testing.T) {
	now := time.Now()
	results := []Result{
		{ID: "a", Score: 0.5, Metadata: ResultMetadata{Importance: 0.1, CreatedAt: now}},
		{ID: "b", Score: 0.9, Metadata: ResultMetadata{Importance: 0.1, CreatedAt: now}},
		{ID: "c", Score: 0.5, Metadata: ResultMetadata{Importance: 0.8, CreatedAt: now.Add(-time.Hour)}},
	}
	SortResults(results, nil)
	assert.Equal(t, []string{"b", "c", "a"}, []string{results[0].ID, results[1].ID, results[2].ID})

	SortResults(results, &SortSpec{Field: "created_at", Direction: SortAsc})
	assert.Equal(t, "c", results[0].ID)
}

func TestPaginate(t *testing.T) {
	rs := []Result{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	assert.Len(t, Paginate(rs, 1, 1), 1)
	assert.Equal(t, "2", Paginate(rs, 1, 1)[0].ID)
	assert.Empty(t, Paginate(rs, 5, 10))
	assert.Len(t, Paginate(rs, 0, 0), 3)
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, Query{Text: "x"}.Validate())
	assert.True(t, IsValidation(Query{Limit: -1}.Validate()))
	assert.True(t, IsValidation(Query{Limit: MaxLimit + 1}.Validate()))
	assert.True(t, IsValidation(Query{Sort: &SortSpec{Field: "score", Direction: "up"}}.Validate()))
}

func TestQueryClone(t *testing.T) {
	q := Query{Filters: map[string]any{"category": "work"}, Sort: &SortSpec{Field: "score"}}
	c := q.Clone()
	c.Filters["category"] = "home"
	c.Sort.Field = "importance"
	assert.Equal(t, "work", q.Filters["category"])
	assert.Equal(t, "score", q.Sort.Field)
}

func TestQueryComplexity(t *testing.T) {
	assert.Equal(t, ComplexitySimple, Query{Text: "go"}.Complexity())
	assert.Equal(t, ComplexityModerate, Query{Text: "go tooling", Filters: map[string]any{"category": "work"}}.Complexity())
	assert.Equal(t, ComplexityComplex, Query{
		Text:             "go tooling notes",
		Filters:          map[string]any{"category": "work"},
		FilterExpression: "importance > 0.5 AND category = 'work' OR memory_type = 'short_term'",
	}.Complexity())
}

func TestTypedErrors(t *testing.T) {
	var err error = &TimeoutError{Strategy: "fulltext", Timeout: time.Second}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = &StrategyError{Strategy: "x", Operation: "execute", Err: &CircuitOpenError{Strategy: "x"}}
	assert.ErrorIs(t, err, ErrCircuitOpen)

	err = &StrategyNotFoundError{Name: "nope"}
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	wrapped := WrapBackend("records", errors.New("database is locked"))
	var be *BackendError
	require.ErrorAs(t, wrapped, &be)
	assert.Equal(t, "records", be.Op)
	assert.Same(t, wrapped, WrapBackend("again", wrapped))
	assert.Nil(t, WrapBackend("x", nil))
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, CompareValues(1, 2.5))
	assert.Equal(t, 0, CompareValues("a", "a"))
	assert.Equal(t, 1, CompareValues(time.Now(), time.Now().Add(-time.Hour)))
	assert.Equal(t, -1, CompareValues(nil, "x"))
}
