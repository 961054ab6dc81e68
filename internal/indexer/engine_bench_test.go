package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/corpus"
)

var benchTerms = []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

func benchCorpus(n int) []corpus.Document {
	docs := make([]corpus.Document, n)
	for i := range docs {
		text := fmt.Sprintf("document about %s and %s covers %s %s in production systems",
			benchTerms[i%len(benchTerms)], benchTerms[(i+1)%len(benchTerms)],
			benchTerms[(i+2)%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)])
		docs[i] = corpus.Document{ID: fmt.Sprintf("doc-%d", i), Text: text}
	}
	return docs
}

// BenchmarkEngineBuild measures a full build at several corpus sizes.
func BenchmarkEngineBuild(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			e, err := NewEngine(indexConfig(b.TempDir()), nil)
			if err != nil {
				b.Fatal(err)
			}
			defer e.Close()
			docs := benchCorpus(size)
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				if _, err := e.Build(context.Background(), "bench", docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineQuery measures end-to-end query latency over 10 000
// documents for each query shape.
func BenchmarkEngineQuery(b *testing.B) {
	e, err := NewEngine(indexConfig(b.TempDir()), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if _, err := e.Build(context.Background(), "bench", benchCorpus(10000)); err != nil {
		b.Fatal(err)
	}
	if err := e.Load("bench"); err != nil {
		b.Fatal(err)
	}
	queries := map[string]string{
		"term":   "search",
		"and":    "search AND ranking",
		"or":     "search OR ranking OR query",
		"not":    "NOT search",
		"phrase": `"production systems"`,
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := e.Query(context.Background(), q, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEngineQueryParallel(b *testing.B) {
	e, err := NewEngine(indexConfig(b.TempDir()), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if _, err := e.Build(context.Background(), "bench", benchCorpus(10000)); err != nil {
		b.Fatal(err)
	}
	if err := e.Load("bench"); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := e.Query(context.Background(), benchTerms[i%len(benchTerms)], 10); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
