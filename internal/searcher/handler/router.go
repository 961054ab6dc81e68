package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/middleware"
)

// NewRouter mounts every route and wraps the mux in the middleware chain.
//
//	GET    /api/v1/search
//	GET    /api/v1/indices
//	POST   /api/v1/indices/{id}
//	DELETE /api/v1/indices/{id}
//	GET    /api/v1/indices/{id}/documents
//	POST   /api/v1/indices/{id}/load
//	GET    /api/v1/cache/stats
//	POST   /api/v1/cache/invalidate
//	GET    /health/live, /health/ready
//	GET    /metrics
//
// Chain, outermost first: RequestID → Metrics → Timeout → mux. m may be
// nil, which drops the metrics middleware and the /metrics route.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/search", h.Search)

	mux.HandleFunc("GET /api/v1/indices", h.ListIndices)
	mux.HandleFunc("POST /api/v1/indices/{id}", h.BuildIndex)
	mux.HandleFunc("DELETE /api/v1/indices/{id}", h.DeleteIndex)
	mux.HandleFunc("GET /api/v1/indices/{id}/documents", h.ListDocuments)
	mux.HandleFunc("POST /api/v1/indices/{id}/load", h.LoadIndex)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if m != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	if timeout > 0 {
		chain = middleware.Timeout(timeout)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
