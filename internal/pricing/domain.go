// Package pricing computes order totals from frozen unit prices, customer
// group discounts, coupons and per-channel delivery fee schedules. Everything
// here is pure: no I/O, no clock reads.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DiscountType enumerates coupon kinds.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// IsValid reports whether the discount type is supported.
func (t DiscountType) IsValid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon is a redeemable discount code.
type Coupon struct {
	ID         int64
	Code       string
	Type       DiscountType
	Value      float64
	MinAmount  float64
	MaxAmount  *float64
	UsageLimit int
	UsedCount  int
	ValidFrom  time.Time
	ValidTo    time.Time
	IsActive   bool
}

// FeeTier charges Fee for subtotals at or above MinSubtotal.
type FeeTier struct {
	MinSubtotal float64
	Fee         float64
}

// FeeSchedule is a step function of the order subtotal. The tier with the
// highest MinSubtotal not exceeding the subtotal applies.
type FeeSchedule struct {
	tiers []FeeTier
}

// NewFeeSchedule sorts and validates tiers.
func NewFeeSchedule(tiers ...FeeTier) (FeeSchedule, error) {
	sorted := append([]FeeTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinSubtotal < sorted[j].MinSubtotal })
	for i, t := range sorted {
		if t.MinSubtotal < 0 || t.Fee < 0 {
			return FeeSchedule{}, fmt.Errorf("pricing: fee tier %d must be non-negative", i)
		}
		if i > 0 && sorted[i-1].MinSubtotal == t.MinSubtotal {
			return FeeSchedule{}, fmt.Errorf("pricing: duplicate fee tier at %.2f", t.MinSubtotal)
		}
	}
	return FeeSchedule{tiers: sorted}, nil
}

// MustFeeSchedule panics on invalid tiers. Intended for literals.
func MustFeeSchedule(tiers ...FeeTier) FeeSchedule {
	s, err := NewFeeSchedule(tiers...)
	if err != nil {
		panic(err)
	}
	return s
}

// FlatFee charges fee below freeFrom and nothing from freeFrom upwards.
// freeFrom <= 0 means the fee always applies.
func FlatFee(fee, freeFrom float64) FeeSchedule {
	if freeFrom <= 0 {
		return MustFeeSchedule(FeeTier{Fee: fee})
	}
	return MustFeeSchedule(FeeTier{Fee: fee}, FeeTier{MinSubtotal: freeFrom})
}

// FeeFor returns the delivery fee for subtotal.
func (s FeeSchedule) FeeFor(subtotal float64) float64 {
	fee := 0.0
	for _, t := range s.tiers {
		if subtotal < t.MinSubtotal {
			break
		}
		fee = t.Fee
	}
	return fee
}

// Tiers returns a copy of the configured tiers in ascending order.
func (s FeeSchedule) Tiers() []FeeTier {
	return append([]FeeTier(nil), s.tiers...)
}

// ChannelConfig is the closed set of sales channel pricing rules: Internal
// or Storefront. Switches over it must handle both.
type ChannelConfig interface {
	Fees() FeeSchedule
	channelConfig()
}

// Internal is the staff-entered delivery-order channel. Coupons never apply.
type Internal struct {
	FeeSchedule FeeSchedule
}

// Storefront is the customer-facing checkout channel.
type Storefront struct {
	FeeSchedule    FeeSchedule
	CouponsEnabled bool
}

// Fees implements ChannelConfig.
func (c Internal) Fees() FeeSchedule { return c.FeeSchedule }

// Fees implements ChannelConfig.
func (c Storefront) Fees() FeeSchedule { return c.FeeSchedule }

func (Internal) channelConfig()   {}
func (Storefront) channelConfig() {}

// AcceptsCoupons reports whether coupons can be redeemed on the channel.
func AcceptsCoupons(cfg ChannelConfig) (bool, error) {
	switch c := cfg.(type) {
	case Internal:
		return false, nil
	case Storefront:
		return c.CouponsEnabled, nil
	default:
		return false, fmt.Errorf("pricing: unsupported channel config %T", cfg)
	}
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
