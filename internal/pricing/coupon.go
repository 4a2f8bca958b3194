package pricing

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// NormalizeCouponCode trims whitespace and upper-cases the code so lookups
// are case-insensitive.
func NormalizeCouponCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}

// Validate checks the coupon can be redeemed against subtotal at now.
func (c Coupon) Validate(now time.Time, subtotal float64) error {
	switch {
	case !c.Type.IsValid() || c.Value <= 0:
		return RejectCoupon(c.Code, ReasonMalformed)
	case !c.IsActive:
		return RejectCoupon(c.Code, ReasonInactive)
	case !c.ValidFrom.IsZero() && now.Before(c.ValidFrom):
		return RejectCoupon(c.Code, ReasonNotStarted)
	case !c.ValidTo.IsZero() && now.After(c.ValidTo):
		return RejectCoupon(c.Code, ReasonExpired)
	case c.UsedCount >= c.UsageLimit:
		return RejectCoupon(c.Code, ReasonExhausted)
	case subtotal < c.MinAmount:
		return RejectCoupon(c.Code, ReasonBelowMinimum)
	}
	return nil
}

// DiscountFor returns the discount the coupon grants on subtotal. Percentage
// coupons are capped at MaxAmount when set; no coupon discounts more than
// the subtotal.
func (c Coupon) DiscountFor(subtotal float64) float64 {
	var d float64
	switch c.Type {
	case DiscountPercentage:
		d = subtotal * c.Value / 100
		if c.MaxAmount != nil && d > *c.MaxAmount {
			d = *c.MaxAmount
		}
	case DiscountFixed:
		d = c.Value
	}
	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return RoundMoney(d)
}
