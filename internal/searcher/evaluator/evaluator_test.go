package evaluator

import (
	"context"
	"math/rand"
	"slices"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/parser"
)

type memSource struct {
	postings map[string]index.PostingList
	universe *roaring.Bitmap
}

func (m memSource) Postings(_ context.Context, term string) (index.PostingList, error) {
	return m.postings[term], nil
}

func (m memSource) Universe() *roaring.Bitmap { return m.universe }

func sourceFor(texts ...string) memSource {
	tok := tokenizer.New(tokenizer.DefaultOptions())
	mem := index.NewMemoryIndex()
	universe := roaring.New()
	for i, text := range texts {
		code := uint32(i + 1)
		mem.AddDocument(code, tok.Tokenize(text))
		universe.Add(code)
	}
	src := memSource{postings: make(map[string]index.PostingList), universe: universe}
	for _, e := range mem.Snapshot() {
		src.postings[e.Term] = e.Postings
	}
	return src
}

func eval(t *testing.T, src Source, skipping bool, query string) []uint32 {
	t.Helper()
	q, err := parser.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	ev := New(src, tokenizer.New(tokenizer.DefaultOptions()), skipping)
	codes, err := ev.Evaluate(context.Background(), q.Root)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", query, err)
	}
	return codes
}

func TestCatDogScenario(t *testing.T) {
	src := sourceFor("the cat sat", "the dog sat", "cat and dog")
	tests := []struct {
		query string
		want  []uint32
	}{
		{"cat AND dog", []uint32{3}},
		{"cat OR dog", []uint32{1, 2, 3}},
		{"NOT cat", []uint32{2}},
		{`"cat and dog"`, []uint32{3}},
		{`"dog cat"`, nil},
		{"cats", []uint32{1, 3}},
		{"the", nil},
		{"zebra", nil},
		{"", nil},
		{"NOT zebra", []uint32{1, 2, 3}},
		{"(cat OR dog) AND NOT sat", []uint32{3}},
		{"cat AND", nil},
	}
	for _, skipping := range []bool{false, true} {
		for _, tt := range tests {
			got := eval(t, src, skipping, tt.query)
			if !slices.Equal(got, tt.want) && !(len(got) == 0 && len(tt.want) == 0) {
				t.Errorf("skipping=%v %q = %v, want %v", skipping, tt.query, got, tt.want)
			}
		}
	}
}

func TestPhraseOrder(t *testing.T) {
	src := sourceFor("the quick brown fox", "quick fox brown")
	got := eval(t, src, false, `"quick brown fox"`)
	if !slices.Equal(got, []uint32{1}) {
		t.Errorf("phrase = %v, want [1]", got)
	}
}

func TestBooleanAlgebra(t *testing.T) {
	src := sourceFor(
		"apple banana", "banana cherry", "cherry apple",
		"apple", "durian", "banana apple cherry",
	)
	a := eval(t, src, false, "apple")
	b := eval(t, src, false, "banana")
	and := eval(t, src, false, "apple AND banana")
	or := eval(t, src, false, "apple OR banana")
	if !slices.Equal(and, Intersect(a, b)) {
		t.Errorf("AND = %v, want %v", and, Intersect(a, b))
	}
	if !slices.Equal(or, Union(a, b)) {
		t.Errorf("OR = %v, want %v", or, Union(a, b))
	}
	if !slices.Equal(eval(t, src, false, "banana AND apple"), and) {
		t.Error("AND should commute")
	}
	notA := eval(t, src, false, "NOT apple")
	if len(Intersect(a, notA)) != 0 || len(Union(a, notA)) != 6 {
		t.Errorf("NOT should partition the universe: a=%v notA=%v", a, notA)
	}
	if !slices.Equal(eval(t, src, false, "NOT NOT apple"), a) {
		t.Error("double negation should be identity")
	}
}

func TestSkipListPointers(t *testing.T) {
	s := NewSkipList([]uint32{1, 3, 5, 7, 9, 11, 13, 15, 17, 19})
	if s.Stride() != 3 {
		t.Fatalf("Stride() = %d, want 3", s.Stride())
	}
	if s.Target(0) != 3 || s.Target(6) != 9 || s.Target(7) != NoSkip {
		t.Errorf("targets = %d %d %d", s.Target(0), s.Target(6), s.Target(7))
	}
	one := NewSkipList([]uint32{4})
	if one.Stride() != 1 || one.Target(0) != NoSkip {
		t.Errorf("single entry: stride=%d target=%d", one.Stride(), one.Target(0))
	}
	if NewSkipList(nil).Stride() != 1 {
		t.Error("empty list stride should be 1")
	}
}

func TestSkipIntersectionMatchesLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomSet := func(n, limit int) []uint32 {
		bm := roaring.New()
		for bm.GetCardinality() < uint64(n) {
			bm.Add(uint32(rng.Intn(limit) + 1))
		}
		return bm.ToArray()
	}
	for trial := 0; trial < 200; trial++ {
		a := randomSet(rng.Intn(60)+1, 200)
		b := randomSet(rng.Intn(60)+1, 200)
		want := Intersect(a, b)
		got := IntersectSkip(NewSkipList(a), NewSkipList(b))
		if !slices.Equal(got, want) {
			t.Fatalf("trial %d: skip %v != linear %v", trial, got, want)
		}
	}
}

func TestQueryTerms(t *testing.T) {
	q, err := parser.Parse(`cats AND NOT "quick brown" OR the`)
	if err != nil {
		t.Fatal(err)
	}
	got := QueryTerms(q.Root, tokenizer.New(tokenizer.DefaultOptions()))
	want := []string{"cat", "quick", "brown"}
	if !slices.Equal(got, want) {
		t.Errorf("QueryTerms = %v, want %v", got, want)
	}
}

func BenchmarkIntersect(b *testing.B) {
	a := make([]uint32, 0, 10000)
	c := make([]uint32, 0, 100)
	for i := uint32(1); i <= 10000; i++ {
		a = append(a, i)
		if i%100 == 0 {
			c = append(c, i)
		}
	}
	sa, sc := NewSkipList(a), NewSkipList(c)
	b.Run("linear", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = Intersect(a, c)
		}
	})
	b.Run("skip", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = IntersectSkip(sa, sc)
		}
	})
}
