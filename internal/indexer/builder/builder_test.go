package builder

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/compress"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
)

var tok = tokenizer.New(tokenizer.DefaultOptions())

func doc(id, text string) index.Document {
	return index.Document{ID: id, Tokens: tok.Tokenize(text)}
}

func build(t *testing.T, opts index.Options, docs []index.Document) (*segment.Reader, Stats) {
	t.Helper()
	b, err := New(opts, 2)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	w, err := segment.Create(dir, opts.Storage)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := b.Build(context.Background(), w, docs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r, err := segment.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, stats
}

func postings(t *testing.T, r *segment.Reader, term string) index.PostingList {
	t.Helper()
	loc, ok := r.Lookup(term)
	if !ok {
		t.Fatalf("term %q not in lexicon", term)
	}
	raw, err := r.Read(loc)
	if err != nil {
		t.Fatal(err)
	}
	c, err := compress.New(r.Meta().Options.Compression)
	if err != nil {
		t.Fatal(err)
	}
	xs, err := c.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	pl, err := index.Unflatten(xs)
	if err != nil {
		t.Fatal(err)
	}
	return pl
}

func TestBuildCatDogCorpus(t *testing.T) {
	docs := []index.Document{
		doc("d1", "the cat sat"),
		doc("d2", "the dog sat"),
		doc("d3", "cat and dog"),
	}
	for _, mode := range []compress.Mode{compress.None, compress.Codec, compress.Generic} {
		t.Run(mode.String(), func(t *testing.T) {
			opts := index.Options{Compression: mode}
			r, stats := build(t, opts, docs)
			if stats.Documents != 3 || stats.Terms != 3 || stats.Postings != 6 {
				t.Errorf("stats = %+v", stats)
			}
			meta := r.Meta()
			if meta.N != 3 || meta.Options != opts {
				t.Errorf("meta = %+v", meta)
			}
			cat := postings(t, r, "cat")
			if !slices.Equal(cat.Codes(), []uint32{1, 3}) {
				t.Errorf("cat codes = %v", cat.Codes())
			}
			if p, _ := cat.Find(3); !slices.Equal(p.Positions, []int{0}) {
				t.Errorf("cat positions in d3 = %v", p.Positions)
			}
			dog := postings(t, r, "dog")
			if p, _ := dog.Find(3); !slices.Equal(p.Positions, []int{1}) {
				t.Errorf("dog positions in d3 = %v", p.Positions)
			}
			if rec := r.Documents()["d2"]; rec.Code != 2 || rec.Length != 2 {
				t.Errorf("d2 record = %+v", rec)
			}
		})
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	r, stats := build(t, index.Options{}, nil)
	if stats.Documents != 0 || r.Meta().N != 0 || len(r.Lexicon()) != 0 {
		t.Errorf("expected empty index, stats=%+v meta=%+v", stats, r.Meta())
	}
}

func TestBuildDuplicateIdentifiers(t *testing.T) {
	docs := []index.Document{
		doc("a", "apple"),
		doc("b", "banana"),
		doc("a", "cherry cherry"),
	}
	r, _ := build(t, index.Options{Storage: index.BoltBackend}, docs)
	if r.Meta().N != 2 {
		t.Fatalf("N = %d, want 2", r.Meta().N)
	}
	if _, ok := r.Lookup("appl"); ok {
		t.Error("tokens of the first occurrence should be replaced")
	}
	cherry := postings(t, r, "cherri")
	if len(cherry) != 1 || cherry[0].Code != 1 || cherry[0].Frequency() != 2 {
		t.Errorf("cherry postings = %+v", cherry)
	}
	if rec := r.Documents()["a"]; rec.Code != 1 || rec.Length != 2 {
		t.Errorf("a record = %+v", rec)
	}
}

func TestBuildCancelled(t *testing.T) {
	b, err := New(index.Options{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	w, err := segment.Create(dir, index.FileBackend)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, w, []index.Document{doc("d1", "cat")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := segment.Open(dir); err == nil {
		t.Error("cancelled build must not leave a readable index")
	}
}
