// Package builder turns tokenized documents into a committed index
// directory: it assigns document codes, aggregates postings, encodes one
// block per term and records where each block landed.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/compress"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/segment"
)

// Stats summarises one build.
type Stats struct {
	Documents    int
	Terms        int
	Postings     int
	PostingsSize int64
	Duration     time.Duration
}

type Builder struct {
	opts       index.Options
	compressor compress.Compressor
	workers    int
	logger     *slog.Logger
}

// New selects the compressor for opts once. workers bounds the number of
// blocks encoded concurrently; zero means GOMAXPROCS.
func New(opts index.Options, workers int) (*Builder, error) {
	c, err := compress.New(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("selecting compressor: %w", err)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		opts:       opts,
		compressor: c,
		workers:    workers,
		logger:     slog.Default().With("component", "builder"),
	}, nil
}

// Build writes docs into w and commits it. When an identifier repeats, the
// code comes from its first occurrence and the tokens from its last.
// Cancellation is observed between documents and between terms; on error
// the writer is left uncommitted and the caller discards its directory.
func (b *Builder) Build(ctx context.Context, w *segment.Writer, docs []index.Document) (Stats, error) {
	start := time.Now()
	table := index.AssignCodes(docs)

	latest := make([]index.Document, table.Len())
	for _, d := range docs {
		latest[table.Code(d.ID)-1] = d
	}

	mem := index.NewMemoryIndex()
	docTable := make(index.DocTable, table.Len())
	for i, d := range latest {
		if err := ctx.Err(); err != nil {
			return Stats{}, fmt.Errorf("aggregating documents: %w", err)
		}
		code := uint32(i + 1)
		mem.AddDocument(code, d.Tokens)
		docTable[d.ID] = index.DocRecord{Length: len(d.Tokens), Code: code}
	}

	entries := mem.Snapshot()
	blocks, err := b.encodeBlocks(ctx, entries)
	if err != nil {
		return Stats{}, err
	}

	lex := make(index.Lexicon, len(entries))
	postings := 0
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Stats{}, fmt.Errorf("writing postings: %w", err)
		}
		loc, err := w.Append(blocks[i])
		if err != nil {
			return Stats{}, fmt.Errorf("appending block for %q: %w", entry.Term, err)
		}
		lex[entry.Term] = loc
		postings += len(entry.Postings)
	}

	if err := w.WriteLexicon(lex); err != nil {
		return Stats{}, err
	}
	if err := w.WriteDocuments(docTable); err != nil {
		return Stats{}, err
	}
	size := w.Size()
	meta := index.Meta{
		Options: b.opts,
		N:       table.Len(),
		Terms:   len(entries),
		BuiltAt: time.Now().UTC(),
	}
	if err := w.Commit(meta); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Documents:    table.Len(),
		Terms:        len(entries),
		Postings:     postings,
		PostingsSize: size,
		Duration:     time.Since(start),
	}
	b.logger.Info("index built",
		"dir", w.Dir(),
		"documents", stats.Documents,
		"terms", stats.Terms,
		"postings_bytes", stats.PostingsSize,
		"compression", b.opts.Compression,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// encodeBlocks serialises every term's postings concurrently. Blocks are
// independent, so only the append order has to be sequential.
func (b *Builder) encodeBlocks(ctx context.Context, entries []index.TermEntry) ([][]byte, error) {
	blocks := make([][]byte, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			block, err := b.compressor.Encode(index.Flatten(entries[i].Postings))
			if err != nil {
				return fmt.Errorf("encoding block for %q: %w", entries[i].Term, err)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("encoding postings: %w", err)
	}
	return blocks, nil
}
