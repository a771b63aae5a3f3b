package logistics

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

// Handler manages order, shipment and return endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers logistics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
	})

	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", h.listShipments)
		r.Post("/", h.createShipment)
		r.Get("/{id}", h.getShipment)
		r.Get("/{id}/qr", h.shipmentQR)
		r.Post("/{id}/mark-ready", h.markReady)
		r.Post("/{id}/pack", h.packShipment)
		r.Post("/{id}/ship", h.shipShipment)
		r.Post("/{id}/deliver", h.deliverShipment)
		r.Post("/{id}/confirm-qr", h.confirmQR)
		r.Post("/{id}/return", h.returnShipment)
		r.Post("/{id}/cancel", h.cancelShipment)
	})

	r.Route("/returns", func(r chi.Router) {
		r.Get("/", h.listReturns)
		r.Post("/", h.createReturn)
		r.Get("/{id}", h.getReturn)
		r.Post("/{id}/submit", h.submitReturn)
		r.Post("/{id}/approve", h.approveReturn)
		r.Post("/{id}/reject", h.rejectReturn)
		r.Post("/{id}/process", h.processReturn)
		r.Post("/{id}/complete", h.completeReturn)
		r.Post("/{id}/cancel", h.cancelReturn)
	})
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	limit = 100
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 || n > 1000 {
			return 0, 0, shared.NewValidationError("limit", "must be between 0 and 1000")
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, shared.NewValidationError("offset", "must be non-negative")
		}
		offset = n
	}
	return limit, offset, nil
}

// ============================================================================
// ORDER ENDPOINTS
// ============================================================================

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, err := h.service.ListOrders(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	o, err := h.service.CreateOrder(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

// ============================================================================
// SHIPMENT ENDPOINTS
// ============================================================================

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	req := ListShipmentsRequest{}
	q := r.URL.Query()
	if v := q.Get("order_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("order_id", "must be an integer"))
			return
		}
		req.OrderID = &id
	}
	if v := q.Get("state"); v != "" {
		state := ShipmentState(v)
		if !state.IsValid() {
			httpx.RespondError(w, shared.NewValidationError("state", "unknown shipment state"))
			return
		}
		req.State = &state
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Limit = limit
	req.Offset = offset

	shipments, err := h.service.ListShipments(r.Context(), req)
	if err != nil {
		h.logger.Error("list shipments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if shipments == nil {
		shipments = []Shipment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": shipments})
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	s, err := h.service.CreateShipment(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

// shipmentQR serves the shipment's QR label as a PNG.
func (h *Handler) shipmentQR(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	img, err := h.service.QRImage(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *Handler) markReady(w http.ResponseWriter, r *http.Request) {
	h.shipmentTransition(w, r, h.service.MarkReady)
}

func (h *Handler) packShipment(w http.ResponseWriter, r *http.Request) {
	h.shipmentTransition(w, r, h.service.Pack)
}

func (h *Handler) shipShipment(w http.ResponseWriter, r *http.Request) {
	h.shipmentTransition(w, r, h.service.Ship)
}

func (h *Handler) deliverShipment(w http.ResponseWriter, r *http.Request) {
	h.shipmentTransition(w, r, h.service.Deliver)
}

func (h *Handler) returnShipment(w http.ResponseWriter, r *http.Request) {
	h.shipmentTransition(w, r, h.service.Return)
}

func (h *Handler) cancelShipment(w http.ResponseWriter, r *http.Request) {
	h.shipmentTransition(w, r, h.service.Cancel)
}

func (h *Handler) shipmentTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error)) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := fn(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

// confirmQR applies a courier delivery scan. The scan key comes from the
// Idempotency-Key header; couriers retry on flaky links.
func (h *Handler) confirmQR(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scanKey := r.Header.Get("Idempotency-Key")
	s, err := h.service.ConfirmQR(r.Context(), shared.ActorFromContext(r.Context()), id, scanKey)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

// ============================================================================
// RETURN ENDPOINTS
// ============================================================================

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	returns, err := h.service.ListReturns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if returns == nil {
		returns = []ReturnRequest{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"returns": returns})
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req CreateReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) submitReturn(w http.ResponseWriter, r *http.Request) {
	h.returnTransition(w, r, h.service.SubmitReturn)
}

func (h *Handler) approveReturn(w http.ResponseWriter, r *http.Request) {
	h.returnTransition(w, r, h.service.ApproveReturn)
}

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	h.returnTransition(w, r, h.service.ProcessReturn)
}

func (h *Handler) cancelReturn(w http.ResponseWriter, r *http.Request) {
	h.returnTransition(w, r, h.service.CancelReturn)
}

func (h *Handler) returnTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor shared.Actor, id int64) (*ReturnRequest, error)) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := fn(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) rejectReturn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RejectReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.RejectReturn(r.Context(), shared.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CompleteReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.CompleteReturn(r.Context(), shared.ActorFromContext(r.Context()), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}
