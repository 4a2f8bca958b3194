package pricing

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

var (
	// ErrCouponInvalid is matched by every coupon rejection.
	ErrCouponInvalid = shared.NewError(shared.KindBusiness, "coupon invalid")
	// ErrInvalidDiscountRate indicates a group rate outside [0,1).
	ErrInvalidDiscountRate = shared.NewError(shared.KindValidation, "discount rate must be within [0,1)")
	// ErrNoLines indicates an empty price request.
	ErrNoLines = shared.NewError(shared.KindValidation, "at least one line is required")
	// ErrInvalidLine indicates a non-positive quantity or negative price.
	ErrInvalidLine = shared.NewError(shared.KindValidation, "line quantity must be positive and price non-negative")
)

// Coupon rejection reasons.
const (
	ReasonUnknown      = "unknown code"
	ReasonInactive     = "inactive"
	ReasonNotStarted   = "not yet valid"
	ReasonExpired      = "expired"
	ReasonExhausted    = "usage limit reached"
	ReasonBelowMinimum = "order below minimum amount"
	ReasonChannel      = "coupons not accepted on this channel"
	ReasonMalformed    = "malformed coupon"
)

// CouponError explains why a coupon was rejected.
type CouponError struct {
	Code   string
	Reason string
}

func (e *CouponError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("coupon invalid: %s", e.Reason)
	}
	return fmt.Sprintf("coupon %s invalid: %s", e.Code, e.Reason)
}

// Is lets errors.Is(err, ErrCouponInvalid) match.
func (e *CouponError) Is(target error) bool {
	return target == ErrCouponInvalid
}

// ErrorKind implements shared.Kinded.
func (e *CouponError) ErrorKind() shared.Kind { return shared.KindBusiness }

// Details exposes the reason on problem responses.
func (e *CouponError) Details() map[string]any {
	return map[string]any{"coupon": e.Code, "reason": e.Reason}
}

// CouponReason extracts the rejection reason, if err is a coupon rejection.
func CouponReason(err error) (string, bool) {
	var ce *CouponError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return "", false
}

// RejectCoupon builds a CouponError.
func RejectCoupon(code, reason string) error {
	return &CouponError{Code: code, Reason: reason}
}
