package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-orders/internal/catalog"
	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
	"github.com/odyssey-erp/odyssey-orders/internal/pricing"
)

// Repository defines the interface for order persistence.
type Repository interface {
	// Read operations
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, req ListRequest) ([]Order, int, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes everything the order transaction touches. Product
// snapshots and stock changes come from the catalog and inventory packages
// bound to the same transaction.
type TxRepository interface {
	catalog.Reader
	inventory.Store

	GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error)
	TouchCustomerLastOrder(ctx context.Context, customerID int64, at time.Time) error
	GetCouponForUpdate(ctx context.Context, code string) (pricing.Coupon, error)
	IncrementCouponUsage(ctx context.Context, couponID int64) error
	ReserveKey(ctx context.Context, key, scope string, at time.Time) error

	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertLineItem(ctx context.Context, item LineItem) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, upd StatusUpdate) error
	DeleteOrder(ctx context.Context, id int64) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txRepository implements TxRepository.
type txRepository struct {
	*catalog.PgReader
	*inventory.PgStore
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			PgReader: catalog.NewPgReader(tx),
			PgStore:  inventory.NewPgStore(tx),
			tx:       tx,
		})
	})
}

const orderColumns = `id, order_no, customer_id, channel, status, subtotal, discount, delivery_fee, total,
       coupon_id, coupon_code, payment_id, paid_amount, notes, order_date, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var channel, status string
	err := row.Scan(&o.ID, &o.OrderNo, &o.CustomerID, &channel, &status, &o.Subtotal, &o.Discount, &o.DeliveryFee, &o.Total,
		&o.CouponID, &o.CouponCode, &o.PaymentID, &o.PaidAmount, &o.Notes, &o.OrderDate, &o.CreatedAt, &o.UpdatedAt)
	o.Channel = Channel(channel)
	o.Status = Status(status)
	return o, err
}

func loadLines(ctx context.Context, q db.Querier, orderID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, subtotal
FROM order_items WHERE order_id = $1 ORDER BY product_id, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load lines: %w", err)
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetOrder loads an order with its lines.
func (r *repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: get %d: %w", id, err)
	}
	if o.Lines, err = loadLines(ctx, r.pool, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns a page of orders without lines.
func (r *repository) ListOrders(ctx context.Context, req ListRequest) ([]Order, int, error) {
	var where []string
	var args []any
	if req.CustomerID != nil {
		args = append(args, *req.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if req.Status != nil {
		args = append(args, string(*req.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orders: count: %w", err)
	}
	args = append(args, req.Page.PerPage, req.Page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}
