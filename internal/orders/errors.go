package orders

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-orders/internal/catalog"
	"github.com/odyssey-erp/odyssey-orders/internal/pricing"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Domain errors for orders.
var (
	ErrOrderNotFound    = shared.NewError(shared.KindNotFound, "order not found")
	ErrCustomerNotFound = shared.NewError(shared.KindNotFound, "customer not found")
	// ErrProductNotFound is returned (as *catalog.MissingProductsError) when
	// any requested product does not exist.
	ErrProductNotFound = catalog.ErrProductNotFound
	// ErrCouponInvalid is matched by every coupon rejection.
	ErrCouponInvalid = pricing.ErrCouponInvalid

	ErrInsufficientInventory = shared.NewError(shared.KindBusiness, "insufficient inventory")
	ErrProductInactive       = shared.NewError(shared.KindValidation, "product is not available for sale")
	ErrInvalidStatus         = shared.NewError(shared.KindValidation, "invalid order status transition")
	ErrStockContention       = shared.NewError(shared.KindBusiness, "stock changed while placing the order, please resubmit")

	// Validation errors.
	ErrEmptyLines        = shared.NewError(shared.KindValidation, "at least one line is required")
	ErrInvalidQuantity   = shared.NewError(shared.KindValidation, "quantity must be greater than zero")
	ErrInvalidCustomer   = shared.NewError(shared.KindValidation, "customer is required")
	ErrUnknownChannel    = shared.NewError(shared.KindValidation, "unknown sales channel")
	ErrInvalidPaidAmount = shared.NewError(shared.KindValidation, "paid amount must be greater than zero")

	errCouponNotFound  = shared.NewError(shared.KindNotFound, "coupon not found")
	errCouponExhausted = shared.NewError(shared.KindBusiness, "coupon usage limit reached")
	// errOrderNumberTaken means the generator handed out a number that is
	// already stored, e.g. after its counter was reset.
	errOrderNumberTaken = shared.NewError(shared.KindConflict, "order number already used")
)

// Shortage describes one product that cannot cover the requested quantity.
type Shortage struct {
	ProductID int64 `json:"product_id"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// InsufficientInventoryError lists every short product of a request.
type InsufficientInventoryError struct {
	Shortages []Shortage
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("product %d (requested %d, available %d)", s.ProductID, s.Requested, s.Available)
	}
	return "insufficient inventory: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInsufficientInventory) match.
func (e *InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// ErrorKind implements shared.Kinded.
func (e *InsufficientInventoryError) ErrorKind() shared.Kind { return shared.KindBusiness }

// Details implements httpx.Detailed.
func (e *InsufficientInventoryError) Details() map[string]any {
	return map[string]any{"shortages": e.Shortages}
}

func newInsufficientInventory(shortages []Shortage) *InsufficientInventoryError {
	sort.Slice(shortages, func(i, j int) bool { return shortages[i].ProductID < shortages[j].ProductID })
	return &InsufficientInventoryError{Shortages: shortages}
}
