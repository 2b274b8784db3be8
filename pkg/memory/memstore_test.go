package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *MemStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemStore()
	now := time.Now()

	records := []*Record{
		{ID: "a", Content: "Learning TypeScript generics", MemoryType: ShortTerm, Category: "work/frontend", Importance: 0.8, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Content: "Grocery list", MemoryType: LongTerm, Category: "personal", Importance: 0.2, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "c", Content: "Go channels deep dive", Summary: "concurrency", MemoryType: LongTerm, Category: "work/backend", Importance: 0.6, CreatedAt: now.Add(-2 * time.Hour),
			Metadata: map[string]any{"source": map[string]any{"kind": "book"}}},
	}
	for _, r := range records {
		require.NoError(t, s.Put(ctx, r))
	}
	require.NoError(t, s.PutRelationship(ctx, Relationship{SourceID: "a", TargetID: "c", Type: "related", Strength: 0.9, Confidence: 0.8}))
	return s
}

func TestMemStore_Records(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	all, err := s.Records(ctx, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{all[0].ID, all[1].ID, all[2].ID}, "newest first")

	work, err := s.Records(ctx, RecordFilter{CategoryPrefix: "work"})
	require.NoError(t, err)
	assert.Len(t, work, 2)

	short, err := s.Records(ctx, RecordFilter{Types: []MemoryType{ShortTerm}})
	require.NoError(t, err)
	require.Len(t, short, 1)
	assert.Equal(t, "a", short[0].ID)

	matched, err := s.Records(ctx, RecordFilter{Patterns: []string{"%typescript%"}})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "a", matched[0].ID)

	recent, err := s.Records(ctx, RecordFilter{Since: time.Now().Add(-3 * time.Hour), Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a", recent[0].ID)
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	r, err := s.Get(ctx, "c")
	require.NoError(t, err)
	r.Metadata["source"].(map[string]any)["kind"] = "mutated"

	again, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "book", again.Metadata["source"].(map[string]any)["kind"])

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemStore_DeleteDropsEdges(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	require.NoError(t, s.Delete(ctx, "c"))
	edges, err := s.Relationships(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, edges)

	hits, err := s.SearchText(ctx, TextQuery{Text: "channels", Weights: DefaultFieldWeights(), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemStore_PutRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	err := s.Put(ctx, &Record{ID: "x", MemoryType: "weird"})
	assert.True(t, errors.Is(err, ErrInvalidRecord))

	err = s.Put(ctx, &Record{ID: "x", MemoryType: LongTerm, Importance: 1.5})
	assert.True(t, errors.Is(err, ErrInvalidRecord))

	err = s.PutRelationship(ctx, Relationship{SourceID: "a", TargetID: "a", Strength: 0.5, Confidence: 0.5})
	assert.True(t, errors.Is(err, ErrInvalidRelationship))
}

func TestMemStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Close())

	_, err := s.Records(ctx, RecordFilter{})
	assert.ErrorIs(t, err, ErrClosed)
}
