package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/compress"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/evaluator"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/tracing"
)

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats,omitempty"`
}

// Executor answers queries against one loaded index. The options recorded
// in the index metadata decide compression, scoring and accumulation; the
// process configuration is not consulted again.
type Executor struct {
	reader     *segment.Reader
	meta       index.Meta
	compressor compress.Compressor
	reverse    map[uint32]string
	universe   *roaring.Bitmap
	tok        *tokenizer.Tokenizer
	workers    int
	logger     *slog.Logger
}

// New prepares an executor over r and takes ownership of it.
func New(r *segment.Reader, tok *tokenizer.Tokenizer) (*Executor, error) {
	meta := r.Meta()
	c, err := compress.New(meta.Options.Compression)
	if err != nil {
		return nil, fmt.Errorf("selecting compressor: %w", err)
	}
	docs := r.Documents()
	if len(docs) != meta.N {
		return nil, apperrors.StorageIO("loading document table",
			fmt.Errorf("%d documents, meta records N=%d", len(docs), meta.N))
	}
	reverse, err := docs.Reverse()
	if err != nil {
		return nil, err
	}
	universe := roaring.New()
	for code := range reverse {
		universe.Add(code)
	}
	e := &Executor{
		reader:     r,
		meta:       meta,
		compressor: c,
		reverse:    reverse,
		universe:   universe,
		tok:        tok,
		workers:    runtime.GOMAXPROCS(0),
		logger:     slog.Default().With("component", "query-executor"),
	}
	if meta.Options.Optimization.Reserved() {
		e.logger.Warn("optimization mode is reserved and has no effect",
			"optimization", meta.Options.Optimization,
		)
	}
	return e, nil
}

// Postings reads and decodes the block of term. Unknown terms yield nil.
func (e *Executor) Postings(_ context.Context, term string) (index.PostingList, error) {
	loc, ok := e.reader.Lookup(term)
	if !ok {
		return nil, nil
	}
	raw, err := e.reader.Read(loc)
	if err != nil {
		return nil, err
	}
	xs, err := e.compressor.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding postings for %q: %w", term, err)
	}
	pl, err := index.Unflatten(xs)
	if err != nil {
		return nil, fmt.Errorf("postings for %q: %w", term, err)
	}
	return pl, nil
}

func (e *Executor) Universe() *roaring.Bitmap {
	return e.universe
}

// Execute parses, evaluates and ranks query. Syntax and decoding errors are
// returned to the caller; a query without matches is an empty result.
func (e *Executor) Execute(ctx context.Context, query string, limit int) (*SearchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "execute")
	defer span.End()

	q, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	terms := evaluator.QueryTerms(q.Root, e.tok)

	fetched, err := e.prefetch(ctx, terms)
	if err != nil {
		return nil, err
	}
	src := prefetched{postings: fetched, universe: e.universe}
	skipping := e.meta.Options.Optimization == index.Skipping
	matched, err := evaluator.New(src, e.tok, skipping).Evaluate(ctx, q.Root)
	if err != nil {
		return nil, err
	}

	termPostings := make([]ranker.TermPostings, len(terms))
	termStats := make(map[string]int, len(fetched))
	for i, t := range terms {
		termPostings[i] = ranker.TermPostings{Term: t, Postings: fetched[t]}
		termStats[t] = len(fetched[t])
	}
	ranked := ranker.Rank(matched, termPostings, ranker.RankParams{
		Model:     e.meta.Options.Info,
		Mode:      e.meta.Options.QueryProc,
		TotalDocs: e.meta.N,
		Limit:     limit,
	})

	results := make([]ranker.ScoredDoc, len(ranked))
	for i, r := range ranked {
		results[i] = ranker.ScoredDoc{DocID: e.reverse[r.Code], Score: r.Score}
	}
	span.SetAttr("terms", len(terms))
	span.SetAttr("matched", len(matched))
	e.logger.Debug("query executed",
		"query", q.Raw,
		"tree", q.Root.String(),
		"terms", terms,
		"candidates", len(matched),
		"results", len(results),
	)
	return &SearchResult{
		Query:     query,
		TotalHits: len(matched),
		Results:   results,
		TermStats: termStats,
	}, nil
}

// prefetch reads every distinct term concurrently. Blocks are read-only
// once published, so lookups need no coordination beyond the result map.
func (e *Executor) prefetch(ctx context.Context, terms []string) (map[string]index.PostingList, error) {
	unique := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			unique = append(unique, t)
		}
	}
	lists := make([]index.PostingList, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, t := range unique {
		g.Go(func() error {
			pl, err := e.Postings(gctx, t)
			if err != nil {
				return err
			}
			lists[i] = pl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]index.PostingList, len(unique))
	for i, t := range unique {
		out[t] = lists[i]
	}
	return out, nil
}

// Meta returns the metadata of the loaded index.
func (e *Executor) Meta() index.Meta {
	return e.meta
}

// Documents lists identifiers in code order.
func (e *Executor) Documents() []string {
	return e.reader.Documents().IDs()
}

func (e *Executor) Dir() string {
	return e.reader.Dir()
}

func (e *Executor) Close() error {
	return e.reader.Close()
}

type prefetched struct {
	postings map[string]index.PostingList
	universe *roaring.Bitmap
}

func (p prefetched) Postings(_ context.Context, term string) (index.PostingList, error) {
	return p.postings[term], nil
}

func (p prefetched) Universe() *roaring.Bitmap {
	return p.universe
}
