package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/recall/pkg/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &memory.Record{
		ID: "r1", Content: "Learning TypeScript generics", Summary: "ts",
		MemoryType: memory.ShortTerm, Category: "work/frontend", Importance: 0.7, CreatedAt: created,
		Metadata: map[string]any{"source": map[string]any{"kind": "course"}, "rating": 4.0},
	}
	require.NoError(t, s.Put(ctx, in))

	out, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, memory.ShortTerm, out.MemoryType)
	assert.True(t, created.Equal(out.CreatedAt))
	assert.Equal(t, "course", out.Metadata["source"].(map[string]any)["kind"])
	assert.Equal(t, 4.0, out.Metadata["rating"])

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestStore_RecordsFilterPushdown(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()

	rows := []*memory.Record{
		{ID: "a", Content: "TypeScript notes", MemoryType: memory.ShortTerm, Category: "work/frontend", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Content: "Go notes", MemoryType: memory.LongTerm, Category: "work/backend", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Content: "Holiday plans", MemoryType: memory.LongTerm, Category: "personal", CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "d", Content: "50% discount", MemoryType: memory.LongTerm, Category: "workshop", CreatedAt: now.Add(-3 * time.Hour)},
	}
	for _, r := range rows {
		require.NoError(t, s.Put(ctx, r))
	}

	got, err := s.Records(ctx, memory.RecordFilter{CategoryPrefix: "work"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))

	got, err = s.Records(ctx, memory.RecordFilter{Patterns: []string{"%notes%"}, Types: []memory.MemoryType{memory.LongTerm}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))

	got, err = s.Records(ctx, memory.RecordFilter{Patterns: []string{"%" + memory.EscapeLike("50%") + "%"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(got))

	got, err = s.Records(ctx, memory.RecordFilter{Since: now.Add(-24 * time.Hour), Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestStore_SearchText(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, &memory.Record{ID: "t", Summary: "golang", Content: "notes on tooling", MemoryType: memory.LongTerm, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &memory.Record{ID: "c", Summary: "tooling", Content: "golang tooling notes", MemoryType: memory.ShortTerm, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &memory.Record{ID: "x", Content: "unrelated", MemoryType: memory.LongTerm, CreatedAt: time.Now()}))

	hits, err := s.SearchText(ctx, memory.TextQuery{Text: "golang", Weights: memory.FieldWeights{Title: 5, Content: 1, Category: 1}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "t", hits[0].ID)
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
	}

	hits, err = s.SearchText(ctx, memory.TextQuery{Text: "golang", Weights: memory.DefaultFieldWeights(), Types: []memory.MemoryType{memory.ShortTerm}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].ID)

	// FTS syntax in user input is neutralised.
	hits, err = s.SearchText(ctx, memory.TextQuery{Text: `golang" NOT "`, Weights: memory.DefaultFieldWeights(), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestStore_RelationshipsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, &memory.Record{ID: id, Content: id, MemoryType: memory.LongTerm, CreatedAt: time.Now()}))
	}
	require.NoError(t, s.PutRelationship(ctx, memory.Relationship{SourceID: "a", TargetID: "b", Type: "x", Strength: 0.4, Confidence: 1}))
	require.NoError(t, s.PutRelationship(ctx, memory.Relationship{SourceID: "a", TargetID: "c", Type: "x", Strength: 0.9, Confidence: 1}))

	edges, err := s.Relationships(ctx, "a")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "c", edges[0].TargetID, "strongest first")

	require.NoError(t, s.Delete(ctx, "c"))
	edges, err = s.Relationships(ctx, "a")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "b", edges[0].TargetID)

	hits, err := s.SearchText(ctx, memory.TextQuery{Text: "c", Weights: memory.DefaultFieldWeights(), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"foo" OR "bar"`, ftsQuery("foo, bar!"))
	assert.Equal(t, "", ftsQuery(`"*"`))
}

func ids(rs []*memory.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
