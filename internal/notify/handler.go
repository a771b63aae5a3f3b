package notify

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the message log and template store.
type Handler struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
	repo       Repository
	validate   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, dispatcher *Dispatcher, repo Repository) *Handler {
	return &Handler{
		logger:     logger,
		dispatcher: dispatcher,
		repo:       repo,
		validate:   validator.New(),
	}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", h.listMessages)
		r.Get("/{id}", h.getMessage)
		r.Post("/{id}/delivered", h.markDelivered)
		r.Post("/{id}/read", h.markRead)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.listTemplates)
		r.Post("/", h.createTemplate)
	})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.URL.Query().Get("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.RespondError(w, shared.NewValidationError("order_id", "must be a positive integer"))
		return
	}
	messages, err := h.repo.ListMessagesByOrder(r.Context(), orderID)
	if err != nil {
		h.logger.Error("list messages", slog.Int64("order_id", orderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := h.repo.GetMessage(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.receipt(w, r, h.dispatcher.MarkDelivered)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	h.receipt(w, r, h.dispatcher.MarkRead)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	if err := apply(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	msg, err := h.repo.GetMessage(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.repo.ListTemplates(r.Context())
	if err != nil {
		h.logger.Error("list templates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if templates == nil {
		templates = []Template{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// CreateTemplateRequest registers a stored template body.
type CreateTemplateRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	Type   string `json:"type" validate:"required"`
	Body   string `json:"body" validate:"required"`
	Active bool   `json:"active"`
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tplType := TemplateType(req.Type)
	if !tplType.IsValid() {
		httpx.RespondError(w, shared.NewValidationError("type", "unknown template type "+req.Type))
		return
	}
	id, err := h.repo.CreateTemplate(r.Context(), Template{
		Name:   req.Name,
		Type:   tplType,
		Body:   req.Body,
		Active: req.Active,
	})
	if err != nil {
		h.logger.Error("create template", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}
