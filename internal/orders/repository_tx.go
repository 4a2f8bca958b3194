package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
	"github.com/odyssey-erp/odyssey-orders/internal/pricing"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// GetCustomerForUpdate loads the customer with its group discount rate and
// locks the row so concurrent orders of one customer queue up.
func (t *txRepository) GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := t.tx.QueryRow(ctx, `SELECT c.id, c.name, c.group_id, COALESCE(g.discount_rate, 0), c.last_order_at
FROM customers c
LEFT JOIN customer_groups g ON g.id = c.group_id
WHERE c.id = $1
FOR UPDATE OF c`, id).Scan(&c.ID, &c.Name, &c.GroupID, &c.DiscountRate, &c.LastOrderAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("orders: load customer %d: %w", id, err)
	}
	return c, nil
}

// TouchCustomerLastOrder records the time of the customer's latest order.
func (t *txRepository) TouchCustomerLastOrder(ctx context.Context, customerID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE customers SET last_order_at = $2 WHERE id = $1`, customerID, at)
	return err
}

// GetCouponForUpdate loads and locks a coupon by normalised code.
func (t *txRepository) GetCouponForUpdate(ctx context.Context, code string) (pricing.Coupon, error) {
	var c pricing.Coupon
	var discountType string
	err := t.tx.QueryRow(ctx, `SELECT id, code, discount_type, value, min_amount, max_amount,
       usage_limit, used_count, valid_from, valid_to, is_active
FROM coupons WHERE code = $1 FOR UPDATE`, code).Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &c.MinAmount, &c.MaxAmount,
		&c.UsageLimit, &c.UsedCount, &c.ValidFrom, &c.ValidTo, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.Coupon{}, errCouponNotFound
	}
	if err != nil {
		return pricing.Coupon{}, fmt.Errorf("orders: load coupon: %w", err)
	}
	c.Type = pricing.DiscountType(discountType)
	return c, nil
}

// IncrementCouponUsage bumps used_count unless the limit has been reached.
func (t *txRepository) IncrementCouponUsage(ctx context.Context, couponID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1
WHERE id = $1 AND used_count < usage_limit`, couponID)
	if err != nil {
		return fmt.Errorf("orders: redeem coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errCouponExhausted
	}
	return nil
}

// ReserveKey claims an idempotency key inside the order transaction.
func (t *txRepository) ReserveKey(ctx context.Context, key, scope string, at time.Time) error {
	return shared.ReserveKey(ctx, t.tx, key, scope, at)
}

const orderNoConstraint = "orders_order_no_key"

// InsertOrder creates the order header.
func (t *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	query := `
		INSERT INTO orders (
			order_no, customer_id, channel, status, subtotal, discount, delivery_fee, total,
			coupon_id, coupon_code, paid_amount, notes, order_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		o.OrderNo, o.CustomerID, string(o.Channel), string(o.Status), o.Subtotal, o.Discount, o.DeliveryFee, o.Total,
		o.CouponID, o.CouponCode, o.PaidAmount, o.Notes, o.OrderDate, o.CreatedAt,
	).Scan(&id)
	if db.IsUniqueViolationOn(err, orderNoConstraint) {
		return 0, fmt.Errorf("%w: %s", errOrderNumberTaken, o.OrderNo)
	}
	return id, err
}

// InsertLineItem inserts an order line.
func (t *txRepository) InsertLineItem(ctx context.Context, item LineItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal).Scan(&id)
	return id, err
}

// GetOrderForUpdate loads and locks an order with its lines.
func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: lock %d: %w", id, err)
	}
	if o.Lines, err = loadLines(ctx, t.tx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// UpdateOrderStatus writes the status and payment columns.
func (t *txRepository) UpdateOrderStatus(ctx context.Context, id int64, upd StatusUpdate) error {
	cmdTag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_id = COALESCE($3, payment_id), paid_amount = $4, updated_at = $5
		WHERE id = $1
	`, id, string(upd.Status), upd.PaymentID, upd.PaidAmount, upd.At)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// DeleteOrder removes the order; order_items cascade.
func (t *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// InsertPayment records a payment row.
func (t *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (order_id, customer_id, amount, status, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.OrderID, p.CustomerID, p.Amount, p.Status, p.PaidAt).Scan(&id)
	return id, err
}
