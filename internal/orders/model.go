// Package orders turns purchase requests into durable orders and reverses
// them, keeping stock, the inventory ledger and customer side effects in one
// transaction.
package orders

import (
	"time"
)

// Status represents the lifecycle of an order.
type Status string

const (
	StatusPending    Status = "pending"    // Committed, stock already taken
	StatusProcessing Status = "processing" // Being picked or shipped
	StatusCompleted  Status = "completed"  // Delivered and billable
	StatusCancelled  Status = "cancelled"  // Stock returned, row kept
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an order in s may move to target.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(target Status, allowCancelCompleted bool) bool {
	if s == target {
		return true
	}
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusCompleted || target == StatusCancelled
	case StatusProcessing:
		return target == StatusCompleted || target == StatusCancelled
	case StatusCompleted:
		return target == StatusCancelled && allowCancelCompleted
	default:
		return false
	}
}

// Channel identifies where an order was placed.
type Channel string

const (
	ChannelInternal   Channel = "internal"
	ChannelStorefront Channel = "storefront"
)

// Order is a committed purchase.
type Order struct {
	ID          int64      `json:"id"`
	OrderNo     string     `json:"order_no"`
	CustomerID  int64      `json:"customer_id"`
	Channel     Channel    `json:"channel"`
	Status      Status     `json:"status"`
	Subtotal    float64    `json:"subtotal"`
	Discount    float64    `json:"discount"`
	DeliveryFee float64    `json:"delivery_fee"`
	Total       float64    `json:"total"`
	CouponID    *int64     `json:"coupon_id,omitempty"`
	CouponCode  *string    `json:"coupon_code,omitempty"`
	PaymentID   *int64     `json:"payment_id,omitempty"`
	PaidAmount  float64    `json:"paid_amount"`
	Notes       *string    `json:"notes,omitempty"`
	OrderDate   time.Time  `json:"order_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Lines       []LineItem `json:"lines"`
}

// TotalQuantity sums the quantities of all lines.
func (o Order) TotalQuantity() int64 {
	var n int64
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// LineItem is one product of an order. UnitPrice is frozen at order time.
type LineItem struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	ProductID int64   `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// Customer is the buyer as seen by the order flow.
type Customer struct {
	ID           int64
	Name         string
	GroupID      *int64
	DiscountRate float64
	LastOrderAt  *time.Time
}

// PaymentCleared marks a payment that counts toward statements.
const PaymentCleared = "cleared"

// Payment records money received against an order.
type Payment struct {
	ID         int64
	OrderID    int64
	CustomerID int64
	Amount     float64
	Status     string
	PaidAt     time.Time
}

// StatusUpdate carries the columns written by a status change.
type StatusUpdate struct {
	Status     Status
	PaymentID  *int64
	PaidAmount float64
	At         time.Time
}
