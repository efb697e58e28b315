package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Reader is the query side of Store.
type Reader interface {
	Get(ctx context.Context, artifact string) (*Record, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]Record, error)
}

// Handler serves artifact outcomes over HTTP.
type Handler struct {
	store  Reader
	logger *slog.Logger
}

func NewHandler(store Reader) *Handler {
	return &Handler{
		store:  store,
		logger: slog.Default().With("component", "artifact-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/artifacts", h.List)
	mux.HandleFunc("GET /api/v1/artifacts/{artifact...}", h.Get)
}

// List handles GET /api/v1/artifacts?status=ABANDONED&limit=N.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusAbandoned
	}
	if status != StatusIndexed && status != StatusAbandoned {
		h.writeError(w, http.StatusBadRequest, "status must be INDEXED or ABANDONED")
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.store.ListByStatus(r.Context(), status, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing artifacts failed", "status", status, "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing artifacts failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"artifacts": records,
	})
}

// Get handles GET /api/v1/artifacts/{artifact}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	artifact := r.PathValue("artifact")
	if _, _, err := container.SplitArtifact(artifact); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.store.Get(r.Context(), artifact)
	if err != nil {
		code := apperrors.HTTPStatusCode(err)
		if code >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("artifact lookup failed", "artifact", artifact, "error", err)
			h.writeError(w, code, "artifact lookup failed")
			return
		}
		h.writeError(w, code, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
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
