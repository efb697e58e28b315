package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/tracing"
)

type LookupExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.LookupResult, error)
}

type Handler struct {
	executor     LookupExecutor
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds the lookup handler. queryCache and m may be nil.
func New(exec LookupExecutor, queryCache *cache.QueryCache, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "lookup-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/lookup", h.Lookup)
	mux.HandleFunc("GET /api/v1/indexes", h.Indexes)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "lookup", logger.RequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	plan, err := parser.Parse(query)
	if err != nil {
		h.metrics.ObserveLookup("error", "none", time.Since(start))
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	var result *executor.LookupResult
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, plan, limit, func() (*executor.LookupResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}

	if err != nil {
		h.metrics.ObserveLookup("error", cacheStatus, time.Since(start))
		log.Error("lookup failed", "query", query, "error", err)
		status := apperrors.HTTPStatusCode(err)
		message := "lookup failed"
		if status < http.StatusInternalServerError {
			message = err.Error()
		}
		h.writeError(w, status, message)
		return
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.metrics.ObserveLookup(resultType, cacheStatus, time.Since(start))
	log.Info("lookup completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Values),
		"cache", cacheStatus,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Indexes lists the index names a query prefix may name.
func (h *Handler) Indexes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": indexer.IndexNames})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
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
