package orders

import "github.com/odyssey-erp/odyssey-orders/internal/shared"

// CreateRequest represents request to place an order.
type CreateRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	Channel    Channel         `json:"channel" validate:"required,oneof=internal storefront"`
	CouponCode *string         `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
	Notes      *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Lines      []CreateLineReq `json:"lines" validate:"required,min=1,dive"`
	// IdempotencyKey is taken from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// CreateLineReq represents a line item in create request.
type CreateLineReq struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// UpdateStatusRequest moves an order through its lifecycle and optionally
// records a cleared payment.
type UpdateStatusRequest struct {
	Status     Status   `json:"status" validate:"required,oneof=pending processing completed cancelled"`
	PaidAmount *float64 `json:"paid_amount,omitempty" validate:"omitempty,gt=0"`
}

// CancelResult reports what a cancellation restored.
type CancelResult struct {
	OrderID          int64  `json:"order_id"`
	OrderNo          string `json:"order_no"`
	RestoredQuantity int64  `json:"restored_quantity"`
}

// ListRequest filters orders.
type ListRequest struct {
	CustomerID *int64
	Status     *Status
	Page       shared.Pagination
}

// ListResponse represents API response for list.
type ListResponse struct {
	Orders     []Order           `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}
