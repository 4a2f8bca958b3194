package pricing

import (
	"fmt"
	"time"
)

// Line is one priced line of an order.
type Line struct {
	ProductID int64
	Quantity  int64
	UnitPrice float64
}

// PricedLine carries the computed subtotal for a line.
type PricedLine struct {
	Line
	Subtotal float64
}

// Input is everything Calculate needs. Now is passed in so results are
// reproducible.
type Input struct {
	Lines             []Line
	GroupDiscountRate float64
	Coupon            *Coupon
	Channel           ChannelConfig
	Now               time.Time
}

// Quote is the full price breakdown.
type Quote struct {
	Lines          []PricedLine
	Subtotal       float64
	GroupDiscount  float64
	CouponDiscount float64
	Discount       float64
	DeliveryFee    float64
	Total          float64
}

// Calculate prices the order. Total = max(0, Subtotal-Discount) + DeliveryFee
// and is never negative.
func Calculate(in Input) (Quote, error) {
	if len(in.Lines) == 0 {
		return Quote{}, ErrNoLines
	}
	if in.Channel == nil {
		return Quote{}, fmt.Errorf("pricing: channel config required")
	}
	if in.GroupDiscountRate < 0 || in.GroupDiscountRate >= 1 {
		return Quote{}, fmt.Errorf("%w: got %v", ErrInvalidDiscountRate, in.GroupDiscountRate)
	}

	q := Quote{Lines: make([]PricedLine, 0, len(in.Lines))}
	for _, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return Quote{}, fmt.Errorf("%w: product %d", ErrInvalidLine, l.ProductID)
		}
		sub := RoundMoney(l.UnitPrice * float64(l.Quantity))
		q.Lines = append(q.Lines, PricedLine{Line: l, Subtotal: sub})
		q.Subtotal += sub
	}
	q.Subtotal = RoundMoney(q.Subtotal)
	q.GroupDiscount = RoundMoney(q.Subtotal * in.GroupDiscountRate)

	if in.Coupon != nil {
		ok, err := AcceptsCoupons(in.Channel)
		if err != nil {
			return Quote{}, err
		}
		if !ok {
			return Quote{}, RejectCoupon(in.Coupon.Code, ReasonChannel)
		}
		if err := in.Coupon.Validate(in.Now, q.Subtotal); err != nil {
			return Quote{}, err
		}
		q.CouponDiscount = in.Coupon.DiscountFor(q.Subtotal)
	}

	q.Discount = RoundMoney(q.GroupDiscount + q.CouponDiscount)
	if q.Discount > q.Subtotal {
		q.Discount = q.Subtotal
	}
	q.DeliveryFee = RoundMoney(in.Channel.Fees().FeeFor(q.Subtotal))
	q.Total = RoundMoney(q.Subtotal - q.Discount + q.DeliveryFee)
	if q.Total < 0 {
		q.Total = 0
	}
	return q, nil
}
