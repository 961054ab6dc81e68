package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/builder"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/metrics"
)

const stagingPrefix = ".staging-"

// IndexInfo describes one published index.
type IndexInfo struct {
	ID   string     `json:"id"`
	Meta index.Meta `json:"meta"`
}

// Engine manages the indices under one root directory and serves queries
// against at most one loaded index at a time.
type Engine struct {
	root    string
	opts    index.Options
	workers int
	tok     *tokenizer.Tokenizer
	metrics *metrics.Metrics
	logger  *slog.Logger

	buildMu  sync.Mutex
	building map[string]struct{}

	mu       sync.RWMutex
	loaded   *executor.Executor
	loadedID string
}

// NewEngine prepares the root directory and removes staging directories
// left behind by interrupted builds. m may be nil.
func NewEngine(cfg config.IndexConfig, m *metrics.Metrics) (*Engine, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("index options: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		root:     cfg.DataDir,
		opts:     opts,
		workers:  cfg.BuildWorkers,
		tok:      tokenizer.New(cfg.Tokenizer),
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
		building: make(map[string]struct{}),
	}
	if err := e.removeStaleStaging(); err != nil {
		return nil, err
	}
	return e, nil
}

// Options returns the options new builds record.
func (e *Engine) Options() index.Options {
	return e.opts
}

// Tokenizer returns the normaliser shared by builds and queries.
func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tok
}

// Build creates or fully replaces index id from docs. The index is built in
// a staging directory and swapped into place only after it is committed, so
// readers never observe a partial index. A failed or cancelled build leaves
// the previous version untouched.
func (e *Engine) Build(ctx context.Context, id string, docs []corpus.Document) (builder.Stats, error) {
	if err := validateID(id); err != nil {
		return builder.Stats{}, err
	}
	release, err := e.acquire(id)
	if err != nil {
		return builder.Stats{}, err
	}
	defer release()

	stats, err := e.build(ctx, id, docs)
	e.observeBuild(id, stats, err)
	if err != nil {
		return builder.Stats{}, err
	}

	e.mu.RLock()
	reload := e.loadedID == id
	e.mu.RUnlock()
	if reload {
		if err := e.Load(id); err != nil {
			return stats, fmt.Errorf("reloading rebuilt index: %w", err)
		}
	}
	return stats, nil
}

func (e *Engine) build(ctx context.Context, id string, docs []corpus.Document) (builder.Stats, error) {
	staging, err := os.MkdirTemp(e.root, stagingPrefix+id+"-")
	if err != nil {
		return builder.Stats{}, apperrors.StorageIO("creating staging directory", err)
	}
	published := false
	defer func() {
		if !published {
			if err := os.RemoveAll(staging); err != nil {
				e.logger.Error("removing staging directory", "dir", staging, "error", err)
			}
		}
	}()

	indexed := make([]index.Document, 0, len(docs))
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return builder.Stats{}, fmt.Errorf("tokenizing documents: %w", err)
		}
		indexed = append(indexed, index.Document{ID: d.ID, Tokens: e.tok.Tokenize(d.Text)})
	}

	w, err := segment.Create(staging, e.opts.Storage)
	if err != nil {
		return builder.Stats{}, err
	}
	b, err := builder.New(e.opts, e.workers)
	if err != nil {
		w.Close()
		return builder.Stats{}, err
	}
	stats, err := b.Build(ctx, w, indexed)
	if err != nil {
		w.Close()
		return builder.Stats{}, fmt.Errorf("building index %s: %w", id, err)
	}

	if err := e.publish(staging, filepath.Join(e.root, id)); err != nil {
		return builder.Stats{}, err
	}
	published = true
	return stats, nil
}

// publish moves staging to final, replacing any previous version.
func (e *Engine) publish(staging, final string) error {
	var retired string
	if _, err := os.Stat(final); err == nil {
		retired = fmt.Sprintf("%s.retired-%d", final, time.Now().UnixNano())
		if err := os.Rename(final, retired); err != nil {
			return apperrors.StorageIO("retiring previous index", err)
		}
	}
	if err := os.Rename(staging, final); err != nil {
		if retired != "" {
			if rbErr := os.Rename(retired, final); rbErr != nil {
				e.logger.Error("restoring previous index", "dir", final, "error", rbErr)
			}
		}
		return apperrors.StorageIO("publishing index", err)
	}
	if retired != "" {
		if err := os.RemoveAll(retired); err != nil {
			e.logger.Warn("removing retired index", "dir", retired, "error", err)
		}
	}
	return nil
}

// Update rebuilds id from add. The store has no tombstones, so remove is
// recorded but has no separate effect: documents absent from add are gone
// after the rebuild either way.
func (e *Engine) Update(ctx context.Context, id string, remove []string, add []corpus.Document) (builder.Stats, error) {
	e.logger.Info("updating index by full rebuild",
		"index", id,
		"remove", len(remove),
		"add", len(add),
	)
	return e.Build(ctx, id, add)
}

// Load makes index id the target of Query.
func (e *Engine) Load(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return e.load(id, filepath.Join(e.root, id))
}

// LoadPath loads an index directory outside the root.
func (e *Engine) LoadPath(dir string) error {
	return e.load(filepath.Base(filepath.Clean(dir)), dir)
}

func (e *Engine) load(id, dir string) error {
	r, err := segment.Open(dir)
	if err != nil {
		return fmt.Errorf("loading index %s: %w", id, err)
	}
	ex, err := executor.New(r, e.tok)
	if err != nil {
		r.Close()
		return fmt.Errorf("loading index %s: %w", id, err)
	}

	e.mu.Lock()
	previous := e.loaded
	e.loaded = ex
	e.loadedID = id
	e.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			e.logger.Warn("closing previous index", "error", err)
		}
	}
	meta := ex.Meta()
	if e.metrics != nil {
		e.metrics.IndexTerms.WithLabelValues(id).Set(float64(meta.Terms))
		e.metrics.IndexPostingsBytes.WithLabelValues(id).Set(float64(meta.PostingsSize))
	}
	e.logger.Info("index loaded",
		"index", id,
		"documents", meta.N,
		"terms", meta.Terms,
		"options", meta.Options,
	)
	return nil
}

// Query runs text against the loaded index.
func (e *Engine) Query(ctx context.Context, text string, limit int) (*executor.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.loaded == nil {
		return nil, apperrors.ErrNotLoaded
	}
	return e.loaded.Execute(ctx, text, limit)
}

// Loaded reports the loaded index and its metadata.
func (e *Engine) Loaded() (string, index.Meta, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.loaded == nil {
		return "", index.Meta{}, false
	}
	return e.loadedID, e.loaded.Meta(), true
}

// Delete removes index id. Deleting the loaded index unloads it.
func (e *Engine) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	release, err := e.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	dir := filepath.Join(e.root, id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("index %s: %w", id, apperrors.ErrIndexNotFound)
		}
		return apperrors.StorageIO("stat index", err)
	}

	e.mu.Lock()
	if e.loadedID == id && e.loaded != nil {
		if err := e.loaded.Close(); err != nil {
			e.logger.Warn("closing deleted index", "error", err)
		}
		e.loaded = nil
		e.loadedID = ""
	}
	e.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return apperrors.StorageIO("deleting index", err)
	}
	if e.metrics != nil {
		e.metrics.IndexTerms.DeleteLabelValues(id)
		e.metrics.IndexPostingsBytes.DeleteLabelValues(id)
	}
	e.logger.Info("index deleted", "index", id)
	return nil
}

// ListIndices returns every published index ordered by id. Directories
// without a readable metadata record are skipped.
func (e *Engine) ListIndices() ([]IndexInfo, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, apperrors.StorageIO("reading data directory", err)
	}
	infos := make([]IndexInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || strings.Contains(entry.Name(), ".retired-") {
			continue
		}
		meta, err := segment.ReadMeta(filepath.Join(e.root, entry.Name()))
		if err != nil {
			e.logger.Warn("skipping unreadable index", "index", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, IndexInfo{ID: entry.Name(), Meta: meta})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Meta reads the metadata record of index id.
func (e *Engine) Meta(id string) (index.Meta, error) {
	if err := validateID(id); err != nil {
		return index.Meta{}, err
	}
	return segment.ReadMeta(filepath.Join(e.root, id))
}

// ListDocuments returns the identifiers indexed in id, in code order.
func (e *Engine) ListDocuments(id string) ([]string, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	e.mu.RLock()
	if e.loaded != nil && e.loadedID == id {
		ids := e.loaded.Documents()
		e.mu.RUnlock()
		return ids, nil
	}
	e.mu.RUnlock()

	r, err := segment.Open(filepath.Join(e.root, id))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Documents().IDs(), nil
}

// Close releases the loaded index.
func (e *Engine) Close() error {
	return e.Unload()
}

// Unload drops the loaded index, if any. Later queries fail with
// ErrNotLoaded until another Load.
func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded == nil {
		return nil
	}
	err := e.loaded.Close()
	e.loaded = nil
	e.loadedID = ""
	return err
}

func (e *Engine) acquire(id string) (func(), error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if _, busy := e.building[id]; busy {
		return nil, fmt.Errorf("index %s: %w", id, apperrors.ErrBuildInProgress)
	}
	e.building[id] = struct{}{}
	return func() {
		e.buildMu.Lock()
		delete(e.building, id)
		e.buildMu.Unlock()
	}, nil
}

func (e *Engine) observeBuild(id string, stats builder.Stats, err error) {
	status := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	if err != nil {
		e.logger.Error("index build failed", "index", id, "status", status, "error", err)
	}
	if e.metrics == nil {
		return
	}
	e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	if err == nil {
		e.metrics.DocsIndexedTotal.Add(float64(stats.Documents))
		e.metrics.IndexBuildDuration.Observe(stats.Duration.Seconds())
	}
}

func (e *Engine) removeStaleStaging() error {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return fmt.Errorf("reading data directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !(strings.HasPrefix(name, stagingPrefix) || strings.Contains(name, ".retired-")) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.root, name)); err != nil {
			return fmt.Errorf("removing stale staging directory %s: %w", name, err)
		}
		e.logger.Info("removed stale staging directory", "dir", name)
	}
	return nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") ||
		strings.ContainsAny(id, `/\`) || strings.Contains(id, ".retired-") {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid index id %q", id)
	}
	return nil
}
