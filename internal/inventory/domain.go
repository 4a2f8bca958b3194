package inventory

import (
	"time"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Kind enumerates ledger movement kinds.
type Kind string

const (
	// KindDelivery is stock leaving through an internal delivery order.
	KindDelivery Kind = "delivery"
	// KindSale is stock leaving through a storefront checkout.
	KindSale Kind = "sale"
	// KindReturn is stock coming back from a cancelled order.
	KindReturn Kind = "return"
	// KindRestock is inbound stock from suppliers or counts.
	KindRestock Kind = "restock"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindDelivery, KindSale, KindReturn, KindRestock:
		return true
	}
	return false
}

// Inbound reports whether the kind adds stock.
func (k Kind) Inbound() bool {
	return k == KindReturn || k == KindRestock
}

// Record is the cached on-hand quantity of a product.
type Record struct {
	ProductID int64
	Quantity  int64
	MinStock  int64
	UpdatedAt time.Time
}

// BelowMinimum reports whether the product needs restocking.
func (r Record) BelowMinimum() bool {
	return r.MinStock > 0 && r.Quantity <= r.MinStock
}

// Entry is an immutable ledger row. QuantityAfter = QuantityBefore + Delta.
type Entry struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	Delta          int64     `json:"delta"`
	QuantityBefore int64     `json:"quantity_before"`
	QuantityAfter  int64     `json:"quantity_after"`
	Kind           Kind      `json:"kind"`
	Reason         string    `json:"reason"`
	Reference      string    `json:"reference,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Movement is a requested stock change.
type Movement struct {
	ProductID int64
	Delta     int64
	Kind      Kind
	Reason    string
	Reference string
	// ExpectedBefore, when set, must equal the locked quantity or the
	// append fails with ErrStockChanged.
	ExpectedBefore *int64
}

// RestockInput describes inbound stock.
type RestockInput struct {
	ProductID int64
	Quantity  int64
	Reason    string
	// Reference makes the restock idempotent, e.g. a goods-receipt number.
	Reference string
}

// StockCardFilter selects ledger entries for one product.
type StockCardFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Page      shared.Pagination
}

// Drift reports a product whose cached quantity disagrees with its ledger.
type Drift struct {
	ProductID  int64 `json:"product_id"`
	Cached     int64 `json:"cached_quantity"`
	Ledger     int64 `json:"ledger_quantity"`
	Difference int64 `json:"difference"`
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = shared.NewError(shared.KindBusiness, "inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = shared.NewError(shared.KindValidation, "inventory: quantity must be non zero")
	// ErrInvalidKind indicates an unknown kind or a delta whose sign contradicts the kind.
	ErrInvalidKind = shared.NewError(shared.KindValidation, "inventory: movement kind does not match delta")
	// ErrRecordNotFound indicates a product without an inventory record.
	ErrRecordNotFound = shared.NewError(shared.KindNotFound, "inventory: record not found")
	// ErrStockChanged means the locked quantity differs from the caller's snapshot.
	ErrStockChanged = shared.NewError(shared.KindConflict, "inventory: stock changed since snapshot")
)
