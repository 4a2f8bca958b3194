package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func storefront() Storefront {
	return Storefront{FeeSchedule: FlatFee(60, 2000), CouponsEnabled: true}
}

func save10() *Coupon {
	return &Coupon{
		ID:         1,
		Code:       "SAVE10",
		Type:       DiscountPercentage,
		Value:      10,
		MinAmount:  500,
		UsageLimit: 100,
		UsedCount:  3,
		ValidFrom:  now.AddDate(0, -1, 0),
		ValidTo:    now.AddDate(0, 1, 0),
		IsActive:   true,
	}
}

func TestFeeScheduleStepFunction(t *testing.T) {
	s := MustFeeSchedule(
		FeeTier{MinSubtotal: 0, Fee: 80},
		FeeTier{MinSubtotal: 2000, Fee: 0},
		FeeTier{MinSubtotal: 500, Fee: 40},
	)
	cases := map[float64]float64{0: 80, 499.99: 80, 500: 40, 1999: 40, 2000: 0, 10000: 0}
	for subtotal, want := range cases {
		assert.Equal(t, want, s.FeeFor(subtotal), "subtotal %v", subtotal)
	}
	assert.Len(t, s.Tiers(), 3)

	_, err := NewFeeSchedule(FeeTier{Fee: -1})
	require.Error(t, err)
	_, err = NewFeeSchedule(FeeTier{MinSubtotal: 10}, FeeTier{MinSubtotal: 10})
	require.Error(t, err)
}

func TestCalculateInternalOrder(t *testing.T) {
	q, err := Calculate(Input{
		Lines: []Line{
			{ProductID: 1, Quantity: 4, UnitPrice: 125.5},
			{ProductID: 2, Quantity: 1, UnitPrice: 99.99},
		},
		GroupDiscountRate: 0.05,
		Channel:           Internal{FeeSchedule: FlatFee(50, 1000)},
		Now:               now,
	})
	require.NoError(t, err)
	assert.InDelta(t, 601.99, q.Subtotal, 0.001)
	assert.InDelta(t, 30.10, q.GroupDiscount, 0.001)
	assert.InDelta(t, 30.10, q.Discount, 0.001)
	assert.Equal(t, 50.0, q.DeliveryFee)
	assert.InDelta(t, 621.89, q.Total, 0.001)
	assert.InDelta(t, 502.0, q.Lines[0].Subtotal, 0.001)
}

func TestCalculateCouponExample(t *testing.T) {
	q, err := Calculate(Input{
		Lines:   []Line{{ProductID: 9, Quantity: 2, UnitPrice: 1000}},
		Coupon:  save10(),
		Channel: storefront(),
		Now:     now,
	})
	require.NoError(t, err)
	assert.Equal(t, 2000.0, q.Subtotal)
	assert.Equal(t, 200.0, q.CouponDiscount)
	assert.Equal(t, 0.0, q.DeliveryFee)
	assert.Equal(t, 1800.0, q.Total)
}

func TestCalculateCouponCapAndClamp(t *testing.T) {
	c := save10()
	c.Value = 50
	limit := 150.0
	c.MaxAmount = &limit
	q, err := Calculate(Input{Lines: []Line{{ProductID: 1, Quantity: 1, UnitPrice: 1000}}, Coupon: c, Channel: storefront(), Now: now})
	require.NoError(t, err)
	assert.Equal(t, 150.0, q.CouponDiscount)

	fixed := save10()
	fixed.Type = DiscountFixed
	fixed.Value = 5000
	fixed.MinAmount = 0
	q, err = Calculate(Input{
		Lines:             []Line{{ProductID: 1, Quantity: 1, UnitPrice: 300}},
		GroupDiscountRate: 0.5,
		Coupon:            fixed,
		Channel:           storefront(),
		Now:               now,
	})
	require.NoError(t, err)
	assert.Equal(t, 300.0, q.Discount)
	assert.Equal(t, 60.0, q.Total, "only the delivery fee remains")
	assert.GreaterOrEqual(t, q.Total, 0.0)
}

func TestCalculateCouponRejections(t *testing.T) {
	lines := []Line{{ProductID: 1, Quantity: 1, UnitPrice: 1000}}
	cases := []struct {
		name    string
		mutate  func(*Coupon)
		channel ChannelConfig
		reason  string
	}{
		{"inactive", func(c *Coupon) { c.IsActive = false }, storefront(), ReasonInactive},
		{"expired", func(c *Coupon) { c.ValidTo = now.Add(-time.Hour) }, storefront(), ReasonExpired},
		{"not started", func(c *Coupon) { c.ValidFrom = now.Add(time.Hour) }, storefront(), ReasonNotStarted},
		{"exhausted", func(c *Coupon) { c.UsedCount = c.UsageLimit }, storefront(), ReasonExhausted},
		{"below minimum", func(c *Coupon) { c.MinAmount = 5000 }, storefront(), ReasonBelowMinimum},
		{"internal channel", func(*Coupon) {}, Internal{FeeSchedule: FlatFee(0, 0)}, ReasonChannel},
		{"disabled storefront", func(*Coupon) {}, Storefront{FeeSchedule: FlatFee(0, 0)}, ReasonChannel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := save10()
			tc.mutate(c)
			_, err := Calculate(Input{Lines: lines, Coupon: c, Channel: tc.channel, Now: now})
			require.ErrorIs(t, err, ErrCouponInvalid)
			reason, ok := CouponReason(err)
			require.True(t, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestCalculateValidation(t *testing.T) {
	_, err := Calculate(Input{Channel: storefront(), Now: now})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = Calculate(Input{Lines: []Line{{ProductID: 1, Quantity: 0, UnitPrice: 1}}, Channel: storefront()})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = Calculate(Input{Lines: []Line{{ProductID: 1, Quantity: 1, UnitPrice: 1}}, GroupDiscountRate: 1, Channel: storefront()})
	require.ErrorIs(t, err, ErrInvalidDiscountRate)

	_, err = Calculate(Input{Lines: []Line{{ProductID: 1, Quantity: 1, UnitPrice: 1}}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCouponInvalid))
}

func TestNormalizeCouponCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCouponCode("  save10 "))
	assert.Equal(t, "STRASSE", NormalizeCouponCode("straße"))
}
