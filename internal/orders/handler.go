package orders

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// IdempotencyHeader carries the client-chosen key for order placement.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleCancel)
		r.Post("/cancel", h.handleCancel)
		r.Patch("/status", h.handleUpdateStatus)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if key := r.Header.Get(IdempotencyHeader); key != "" {
		if _, err := uuid.Parse(key); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s must be a UUID", shared.ErrValidation, IdempotencyHeader))
			return
		}
		req.IdempotencyKey = key
	}
	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.logFailure(r, "create", err)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/orders/%d", order.ID))
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.logFailure(r, "get", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRequest{Page: shared.PaginationFromQuery(q)}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid customer_id", shared.ErrValidation))
			return
		}
		req.CustomerID = &id
	}
	if v := q.Get("status"); v != "" {
		st := Status(v)
		req.Status = &st
	}
	list, page, err := h.service.ListOrders(r.Context(), req)
	if err != nil {
		h.logFailure(r, "list", err)
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Orders: list, Pagination: page})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateOrderStatus(r.Context(), id, req)
	if err != nil {
		h.logFailure(r, "update status", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CancelOrder(r.Context(), id)
	if err != nil {
		h.logFailure(r, "cancel", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) logFailure(r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("order "+op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		return
	}
	h.logger.Debug("order "+op+" rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
}

func orderIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	return id, nil
}
