package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reconcile", h.handleReconcile)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/{productID}/ledger", h.handleStockCard)
	r.Post("/{productID}/restock", h.handleRestock)
}

type restockRequest struct {
	Quantity  int64  `json:"quantity" validate:"gt=0"`
	Reason    string `json:"reason" validate:"max=200"`
	Reference string `json:"reference" validate:"max=64"`
}

type stockCardResponse struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req restockRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Restock(r.Context(), RestockInput{
		ProductID: productID,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Reference: req.Reference,
	})
	if err != nil {
		h.logFailure(r, "restock", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := StockCardFilter{ProductID: productID, Page: shared.PaginationFromQuery(q)}
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, page, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.logFailure(r, "stock card", err)
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, stockCardResponse{Entries: entries, Pagination: page})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.logFailure(r, "reconcile", err)
		httpx.RespondError(w, err)
		return
	}
	if drifts == nil {
		drifts = []Drift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consistent": len(drifts) == 0, "drifts": drifts})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logFailure(r, "low stock", err)
		httpx.RespondError(w, err)
		return
	}
	type item struct {
		ProductID int64 `json:"product_id"`
		Quantity  int64 `json:"quantity"`
		MinStock  int64 `json:"min_stock"`
	}
	out := make([]item, 0, len(records))
	for _, rec := range records {
		out = append(out, item{ProductID: rec.ProductID, Quantity: rec.Quantity, MinStock: rec.MinStock})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) logFailure(r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("inventory "+op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func productIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return id, nil
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dates use YYYY-MM-DD", shared.ErrValidation)
	}
	return t, nil
}
