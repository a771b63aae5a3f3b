package dashboard

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler serves dashboard rollups.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/regions/{id}", h.regionSummary)
	r.Get("/regions/{id}/ranking", h.agentRanking)
	r.Get("/agents/{id}", h.agentSummary)
	r.Post("/invalidate", h.invalidate)
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.logger.Error("dashboard invalidate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func windowParam(r *http.Request) (Window, error) {
	w := Window(r.URL.Query().Get("window"))
	if w == "" {
		w = WindowMonth
	}
	if !w.IsValid() {
		return "", shared.NewValidationError("window", "must be month or week")
	}
	return w, nil
}

func (h *Handler) regionSummary(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	window, err := windowParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.RegionSummary(r.Context(), id, window, time.Now())
	if err != nil {
		h.logger.Error("region summary", slog.Int64("region_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) agentSummary(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	window, err := windowParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.AgentSummary(r.Context(), id, window, time.Now())
	if err != nil {
		h.logger.Error("agent summary", slog.Int64("agent_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) agentRanking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	standings, err := h.service.AgentRanking(r.Context(), id, time.Now())
	if err != nil {
		h.logger.Error("agent ranking", slog.Int64("region_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"standings": standings})
}
