package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

var catDog = []corpus.Document{
	{ID: "d1", Text: "the cat sat"},
	{ID: "d2", Text: "the dog sat"},
	{ID: "d3", Text: "cat and dog"},
}

func indexConfig(dir string) config.IndexConfig {
	return config.IndexConfig{
		DataDir:      dir,
		DefaultIndex: "default",
		Info:         "TFIDF",
		Storage:      "FILE",
		QueryProc:    "TAAT",
		Compression:  "CODEC",
		Optimization: "NONE",
		BuildWorkers: 2,
		Tokenizer:    tokenizer.DefaultOptions(),
	}
}

func newEngine(t *testing.T, cfg config.IndexConfig) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func buildAndLoad(t *testing.T, e *Engine, id string, docs []corpus.Document) {
	t.Helper()
	if _, err := e.Build(context.Background(), id, docs); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := e.Load(id); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func matchedIDs(res *executor.SearchResult) []string {
	ids := make([]string, len(res.Results))
	for i, r := range res.Results {
		ids[i] = r.DocID
	}
	slices.Sort(ids)
	return ids
}

func query(t *testing.T, e *Engine, q string) *executor.SearchResult {
	t.Helper()
	res, err := e.Query(context.Background(), q, 0)
	if err != nil {
		t.Fatalf("Query(%q): %v", q, err)
	}
	return res
}

func TestEngineCatDogScenario(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	buildAndLoad(t, e, "pets", catDog)

	tests := []struct {
		query string
		want  []string
	}{
		{"cat AND dog", []string{"d3"}},
		{"cat OR dog", []string{"d1", "d2", "d3"}},
		{"NOT cat", []string{"d2"}},
		{`"cat and dog"`, []string{"d3"}},
		{`"dog cat"`, []string{}},
		{"cats", []string{"d1", "d3"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := query(t, e, tt.query)
			if got := matchedIDs(res); !slices.Equal(got, tt.want) {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
			if res.TotalHits != len(tt.want) {
				t.Errorf("TotalHits = %d, want %d", res.TotalHits, len(tt.want))
			}
		})
	}
}

func TestEnginePhraseKeepsStopwordsWhenConfigured(t *testing.T) {
	cfg := indexConfig(t.TempDir())
	cfg.Tokenizer.RemoveStopwords = false
	e := newEngine(t, cfg)
	buildAndLoad(t, e, "pets", append(slices.Clone(catDog), corpus.Document{ID: "d4", Text: "cat dog"}))

	if got := matchedIDs(query(t, e, `"cat and dog"`)); !slices.Equal(got, []string{"d3"}) {
		t.Errorf("phrase matches = %v, want [d3]", got)
	}
}

func TestEnginePhraseOrder(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	buildAndLoad(t, e, "fox", []corpus.Document{
		{ID: "a", Text: "the quick brown fox"},
		{ID: "b", Text: "quick fox brown"},
	})
	if got := matchedIDs(query(t, e, `"quick brown fox"`)); !slices.Equal(got, []string{"a"}) {
		t.Errorf("matches = %v, want [a]", got)
	}
	if got := matchedIDs(query(t, e, "quick AND brown AND fox")); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("matches = %v, want [a b]", got)
	}
}

func TestEngineOptionParity(t *testing.T) {
	docs := []corpus.Document{
		{ID: "a", Text: "search engines rank documents by term frequency"},
		{ID: "b", Text: "an inverted index maps each term to documents"},
		{ID: "c", Text: "term term term frequency matters for ranking"},
		{ID: "d", Text: "compression shrinks the postings of every term"},
	}
	queries := []string{"term", "term AND documents", "rank OR compression", `"inverted index"`, "NOT term", "(term OR index) AND NOT compression"}

	var baseline map[string][]string
	for _, storage := range []string{"FILE", "BOLT"} {
		for _, compression := range []string{"NONE", "CODEC", "CLIB"} {
			for _, qproc := range []string{"TAAT", "DAAT"} {
				for _, optim := range []string{"NONE", "SKIPPING"} {
					name := strings.Join([]string{storage, compression, qproc, optim}, "-")
					t.Run(name, func(t *testing.T) {
						cfg := indexConfig(t.TempDir())
						cfg.Storage, cfg.Compression, cfg.QueryProc, cfg.Optimization = storage, compression, qproc, optim
						e := newEngine(t, cfg)
						buildAndLoad(t, e, "parity", docs)

						got := make(map[string][]string, len(queries))
						for _, q := range queries {
							res := query(t, e, q)
							ids := make([]string, len(res.Results))
							for i, r := range res.Results {
								ids[i] = r.DocID
							}
							got[q] = ids
						}
						if baseline == nil {
							baseline = got
							return
						}
						for _, q := range queries {
							if !slices.Equal(got[q], baseline[q]) {
								t.Errorf("%q ranked %v, baseline %v", q, got[q], baseline[q])
							}
						}
					})
				}
			}
		}
	}
}

func TestEngineTFIDFRanksHigherFrequencyFirst(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	buildAndLoad(t, e, "rank", []corpus.Document{
		{ID: "once", Text: "apple banana"},
		{ID: "thrice", Text: "apple apple apple"},
		{ID: "none", Text: "banana cherry"},
	})
	res := query(t, e, "apple")
	if len(res.Results) != 2 || res.Results[0].DocID != "thrice" {
		t.Fatalf("results = %+v", res.Results)
	}
	if res.Results[0].Score <= res.Results[1].Score {
		t.Errorf("scores not descending: %+v", res.Results)
	}
}

func TestEngineEmptyCorpus(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	buildAndLoad(t, e, "empty", nil)
	for _, q := range []string{"cat", "NOT cat", `"a b"`, ""} {
		if res := query(t, e, q); len(res.Results) != 0 {
			t.Errorf("Query(%q) = %+v, want no matches", q, res.Results)
		}
	}
	_, meta, ok := e.Loaded()
	if !ok || meta.N != 0 {
		t.Errorf("Loaded = %+v, %v", meta, ok)
	}
}

func TestEngineQueryErrors(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	if _, err := e.Query(context.Background(), "cat", 10); !errors.Is(err, apperrors.ErrNotLoaded) {
		t.Errorf("err = %v, want ErrNotLoaded", err)
	}
	buildAndLoad(t, e, "pets", catDog)
	if _, err := e.Query(context.Background(), "(cat AND", 10); !errors.Is(err, apperrors.ErrQuerySyntax) {
		t.Errorf("err = %v, want ErrQuerySyntax", err)
	}
}

func TestEngineRebuildReplacesLoadedIndex(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	buildAndLoad(t, e, "pets", catDog)

	if _, err := e.Update(context.Background(), "pets", []string{"d1", "d2", "d3"}, []corpus.Document{{ID: "x", Text: "bird"}}); err != nil {
		t.Fatal(err)
	}
	if got := matchedIDs(query(t, e, "cat")); len(got) != 0 {
		t.Errorf("cat after rebuild = %v", got)
	}
	if got := matchedIDs(query(t, e, "bird")); !slices.Equal(got, []string{"x"}) {
		t.Errorf("bird after rebuild = %v", got)
	}
	entries, err := os.ReadDir(e.root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "pets" {
		t.Errorf("data dir holds %v", entries)
	}
}

func TestEngineCancelledBuildKeepsPreviousIndex(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	buildAndLoad(t, e, "pets", catDog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Build(ctx, "pets", []corpus.Document{{ID: "x", Text: "bird"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := matchedIDs(query(t, e, "cat")); !slices.Equal(got, []string{"d1", "d3"}) {
		t.Errorf("cat = %v", got)
	}
	matches, err := filepath.Glob(filepath.Join(e.root, stagingPrefix+"*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("staging left behind: %v", matches)
	}
}

func TestEngineListAndDelete(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, indexConfig(root))
	ctx := context.Background()
	for _, id := range []string{"beta", "alpha"} {
		if _, err := e.Build(ctx, id, catDog); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	infos, err := e.ListIndices()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[0].ID != "alpha" || infos[1].ID != "beta" || infos[0].Meta.N != 3 {
		t.Fatalf("ListIndices = %+v", infos)
	}

	ids, err := e.ListDocuments("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []string{"d1", "d2", "d3"}) {
		t.Errorf("ListDocuments = %v", ids)
	}

	if err := e.Load("alpha"); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := e.Loaded(); ok {
		t.Error("deleted index is still loaded")
	}
	if err := e.Delete("alpha"); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("second Delete err = %v, want ErrIndexNotFound", err)
	}
	if err := e.Load("alpha"); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("Load err = %v, want ErrIndexNotFound", err)
	}
}

func TestEngineRejectsInvalidIDs(t *testing.T) {
	e := newEngine(t, indexConfig(t.TempDir()))
	for _, id := range []string{"", ".", "..", ".staging-x", "a/b", `a\b`, "x.retired-1"} {
		if _, err := e.Build(context.Background(), id, catDog); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Build(%q) err = %v, want ErrInvalidInput", id, err)
		}
	}
}

func TestNewEngineRemovesStaleStaging(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, stagingPrefix+"pets-123")
	if err := os.MkdirAll(stale, 0755); err != nil {
		t.Fatal(err)
	}
	newEngine(t, indexConfig(root))
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale staging dir still present: %v", err)
	}
}
