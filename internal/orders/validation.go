package orders

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// ValidateCreateRequest validates create request.
func ValidateCreateRequest(req CreateRequest) error {
	if req.CustomerID <= 0 {
		return ErrInvalidCustomer
	}
	if len(req.Lines) == 0 {
		return ErrEmptyLines
	}
	for i, line := range req.Lines {
		if line.ProductID <= 0 {
			return fmt.Errorf("line %d: %w: product required", i+1, shared.ErrValidation)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
	}
	if len(req.IdempotencyKey) > 128 {
		return fmt.Errorf("%w: idempotency key too long", shared.ErrValidation)
	}
	return nil
}

// ValidateUpdateStatusRequest validates status change request.
func ValidateUpdateStatusRequest(req UpdateStatusRequest) error {
	if !req.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, req.Status)
	}
	if req.PaidAmount != nil {
		if *req.PaidAmount <= 0 {
			return ErrInvalidPaidAmount
		}
		if req.Status == StatusCancelled {
			return fmt.Errorf("%w: cannot record a payment while cancelling", ErrInvalidStatus)
		}
	}
	return nil
}

// MergeLines folds repeated products into one line, keeping first-seen order.
func MergeLines(lines []CreateLineReq) []CreateLineReq {
	index := make(map[int64]int, len(lines))
	out := make([]CreateLineReq, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func normalizedCoupon(code *string) string {
	if code == nil {
		return ""
	}
	return strings.TrimSpace(*code)
}
