// Package handler serves the search and index management HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/builder"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/tracing"
)

const maxBuildBody = 256 << 20

// Engine is the index engine surface the API drives.
type Engine interface {
	Build(ctx context.Context, id string, docs []corpus.Document) (builder.Stats, error)
	Load(id string) error
	Loaded() (string, index.Meta, bool)
	Query(ctx context.Context, text string, limit int) (*executor.SearchResult, error)
	Delete(id string) error
	Meta(id string) (index.Meta, error)
	ListIndices() ([]indexer.IndexInfo, error)
	ListDocuments(id string) ([]string, error)
}

// Announcer publishes lifecycle events after API-driven builds and
// deletes.
type Announcer interface {
	Built(ctx context.Context, id string, meta index.Meta) error
	Deleted(ctx context.Context, id string) error
}

// Options configures result limits and the per-query deadline.
type Options struct {
	DefaultLimit int
	MaxResults   int
	Timeout      time.Duration
}

type Handler struct {
	engine    Engine
	cache     *cache.QueryCache
	announcer Announcer
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger
}

// New creates a Handler. queryCache, announcer and m may be nil.
func New(engine Engine, queryCache *cache.QueryCache, announcer Announcer, m *metrics.Metrics, opts Options) *Handler {
	return &Handler{
		engine:    engine,
		cache:     queryCache,
		announcer: announcer,
		metrics:   m,
		opts:      opts,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

type buildRequest struct {
	Documents []corpus.Document `json:"documents"`
}

type buildResponse struct {
	Index        string  `json:"index"`
	Documents    int     `json:"documents"`
	Terms        int     `json:"terms"`
	Postings     int     `json:"postings"`
	PostingsSize int64   `json:"postings_size"`
	DurationMs   float64 `json:"duration_ms"`
}

type syntaxErrorResponse struct {
	Error    string `json:"error"`
	Token    string `json:"token"`
	Position int    `json:"position"`
	Offset   int    `json:"offset"`
}

// Search handles GET /api/v1/search?q=&limit=. An absent or blank q is an
// empty query and returns no matches.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())
	query := r.URL.Query().Get("q")

	limit := h.opts.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.opts.MaxResults)
	}

	indexID, meta, ok := h.engine.Loaded()
	if !ok {
		h.countQuery("error")
		h.writeAppError(w, apperrors.ErrNotLoaded)
		return
	}

	traceID, _ := logger.RequestIDFromContext(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "search", traceID)

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	err := resilience.WithTimeout(ctx, h.opts.Timeout, "search", func(ctx context.Context) error {
		var err error
		if h.cache == nil {
			result, err = h.engine.Query(ctx, query, limit)
			return err
		}
		key := cache.Key{Index: indexID, Generation: meta.Generation(), Query: query, Limit: limit}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.engine.Query(ctx, query, limit)
		})
		return err
	})
	span.End()
	span.Log(log)

	if err != nil {
		var syntaxErr *parser.QuerySyntaxError
		if errors.As(err, &syntaxErr) {
			h.countQuery("syntax_error")
			h.writeJSON(w, http.StatusBadRequest, syntaxErrorResponse{
				Error:    syntaxErr.Error(),
				Token:    syntaxErr.Token,
				Position: syntaxErr.Pos,
				Offset:   syntaxErr.Offset,
			})
			return
		}
		h.countQuery("error")
		log.Error("search execution failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}

	// result and cacheHit are only read once the query goroutine is done.
	latency := time.Since(start)
	if h.metrics != nil {
		status := "miss"
		switch {
		case h.cache == nil:
			status = "disabled"
		case cacheHit:
			status = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
	if result.TotalHits == 0 {
		h.countQuery("zero_result")
	} else {
		h.countQuery("hit")
	}
	log.Info("search completed",
		"index", indexID,
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// ListIndices handles GET /api/v1/indices.
func (h *Handler) ListIndices(w http.ResponseWriter, r *http.Request) {
	infos, err := h.engine.ListIndices()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	loaded, _, _ := h.engine.Loaded()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"indices": infos,
		"loaded":  loaded,
	})
}

// BuildIndex handles POST /api/v1/indices/{id}. It replaces any existing
// index with the same id.
func (h *Handler) BuildIndex(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log := logger.FromContext(r.Context())

	var req buildRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBuildBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := corpus.Validate(req.Documents); err != nil {
		var verr *corpus.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeAppError(w, err)
		return
	}

	stats, err := h.engine.Build(r.Context(), id, req.Documents)
	if err != nil {
		log.Error("index build failed", "index", id, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.announceBuilt(r.Context(), id)
	h.writeJSON(w, http.StatusCreated, buildResponse{
		Index:        id,
		Documents:    stats.Documents,
		Terms:        stats.Terms,
		Postings:     stats.Postings,
		PostingsSize: stats.PostingsSize,
		DurationMs:   float64(stats.Duration.Microseconds()) / 1000,
	})
}

// DeleteIndex handles DELETE /api/v1/indices/{id}.
func (h *Handler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.Delete(id); err != nil {
		h.writeAppError(w, err)
		return
	}
	if h.announcer != nil {
		if err := h.announcer.Deleted(r.Context(), id); err != nil {
			h.logger.Warn("announcing index deletion failed", "index", id, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /api/v1/indices/{id}/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ids, err := h.engine.ListDocuments(id)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":     id,
		"documents": ids,
	})
}

// LoadIndex handles POST /api/v1/indices/{id}/load.
func (h *Handler) LoadIndex(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.Load(id); err != nil {
		h.writeAppError(w, err)
		return
	}
	_, meta, _ := h.engine.Loaded()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"loaded": id,
		"meta":   meta,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) announceBuilt(ctx context.Context, id string) {
	if h.announcer == nil {
		return
	}
	meta, err := h.engine.Meta(id)
	if err != nil {
		h.logger.Warn("reading metadata for build event", "index", id, "error", err)
		return
	}
	if err := h.announcer.Built(ctx, id, meta); err != nil {
		h.logger.Warn("announcing index build failed", "index", id, "error", err)
	}
}

func (h *Handler) countQuery(resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
}
