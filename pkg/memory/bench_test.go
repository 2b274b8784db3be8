package memory

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var benchWords = []string{
	"kubernetes", "cluster", "upgrade", "grocery", "milk", "meeting", "notes",
	"deploy", "rollback", "invoice", "travel", "flight", "hotel", "birthday",
}

func seedBenchStore(b *testing.B, n int) *MemStore {
	b.Helper()
	s := NewMemStore()
	now := time.Now()
	for i := 0; i < n; i++ {
		r := &Record{
			ID:         fmt.Sprintf("rec-%d", i),
			Content:    fmt.Sprintf("%s %s %s entry %d", benchWords[i%len(benchWords)], benchWords[(i*7)%len(benchWords)], benchWords[(i*3)%len(benchWords)], i),
			Summary:    benchWords[(i*5)%len(benchWords)],
			MemoryType: AllMemoryTypes[i%2],
			Category:   "bench/" + benchWords[i%4],
			Importance: float64(i%10) / 10,
			CreatedAt:  now.Add(-time.Duration(i) * time.Minute),
		}
		if err := s.Put(context.Background(), r); err != nil {
			b.Fatal(err)
		}
	}
	return s
}

func BenchmarkMemStore_Put(b *testing.B) {
	s := NewMemStore()
	ctx := context.Background()
	now := time.Now()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := s.Put(ctx, &Record{
			ID:         fmt.Sprintf("rec-%d", i),
			Content:    "the kubernetes cluster was upgraded on friday",
			MemoryType: LongTerm,
			CreatedAt:  now,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemStore_SearchText(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("records=%d", n), func(b *testing.B) {
			s := seedBenchStore(b, n)
			ctx := context.Background()
			q := TextQuery{Text: "kubernetes upgrade", Weights: DefaultFieldWeights(), Limit: 20}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.SearchText(ctx, q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMemStore_RecordsByCategory(b *testing.B) {
	s := seedBenchStore(b, 10000)
	ctx := context.Background()
	f := RecordFilter{Category: "bench/kubernetes"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Records(ctx, f); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMatchPattern(b *testing.B) {
	text := "the kubernetes cluster was upgraded on friday after the grocery run"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		MatchPattern("%cluster%upgrade_d%", text)
	}
}
