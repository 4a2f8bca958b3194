package statements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
)

// Repository persists statements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const statementColumns = `id, customer_id, to_char(period_start, 'YYYY-MM'), period_start, period_end, total_orders,
       total_amount, paid_amount, balance, status, generated_at, updated_at`

func scanStatement(row pgx.Row) (Statement, error) {
	var st Statement
	var status string
	err := row.Scan(&st.ID, &st.CustomerID, &st.Period, &st.PeriodStart, &st.PeriodEnd, &st.TotalOrders,
		&st.TotalAmount, &st.PaidAmount, &st.Balance, &status, &st.GeneratedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Statement{}, ErrStatementNotFound
	}
	if err != nil {
		return Statement{}, fmt.Errorf("statements: scan: %w", err)
	}
	st.Status = Status(status)
	return st, nil
}

// Get returns one statement.
func (r *Repository) Get(ctx context.Context, id int64) (Statement, error) {
	return scanStatement(r.pool.QueryRow(ctx, `SELECT `+statementColumns+` FROM monthly_statements WHERE id = $1`, id))
}

// CustomersWithActivity lists customers with completed orders or cleared
// payments in [start, end).
func (r *Repository) CustomersWithActivity(ctx context.Context, start, end time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT customer_id FROM orders
WHERE status = 'completed' AND order_date >= $1 AND order_date < $2
UNION
SELECT customer_id FROM payments
WHERE status = 'cleared' AND paid_at >= $1 AND paid_at < $2
ORDER BY customer_id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("statements: active customers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepo) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, customerID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("statements: customer %d: %w", customerID, err)
	}
	return ok, nil
}

func (t *txRepo) ExistsForPeriod(ctx context.Context, customerID int64, periodStart time.Time) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (
    SELECT 1 FROM monthly_statements WHERE customer_id = $1 AND period_start = $2)`, customerID, periodStart).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("statements: check period: %w", err)
	}
	return ok, nil
}

func (t *txRepo) SumPeriod(ctx context.Context, customerID int64, start, end time.Time) (Totals, error) {
	var out Totals
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0)::float8
FROM orders
WHERE customer_id = $1 AND status = 'completed' AND order_date >= $2 AND order_date < $3`,
		customerID, start, end).Scan(&out.Orders, &out.OrderAmount)
	if err != nil {
		return Totals{}, fmt.Errorf("statements: sum orders: %w", err)
	}
	err = t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::float8
FROM payments
WHERE customer_id = $1 AND status = 'cleared' AND paid_at >= $2 AND paid_at < $3`,
		customerID, start, end).Scan(&out.Paid)
	if err != nil {
		return Totals{}, fmt.Errorf("statements: sum payments: %w", err)
	}
	return out, nil
}

func (t *txRepo) Insert(ctx context.Context, st Statement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO monthly_statements
    (customer_id, period_start, period_end, total_orders, total_amount, paid_amount, balance, status, generated_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		st.CustomerID, st.PeriodStart, st.PeriodEnd, st.TotalOrders, st.TotalAmount, st.PaidAmount,
		st.Balance, string(st.Status), st.GeneratedAt, st.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("statements: insert: %w", err)
	}
	return id, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Statement, error) {
	return scanStatement(t.tx.QueryRow(ctx, `SELECT `+statementColumns+` FROM monthly_statements WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) Update(ctx context.Context, st Statement) error {
	tag, err := t.tx.Exec(ctx, `UPDATE monthly_statements
SET status = $2, paid_amount = $3, balance = $4, updated_at = $5
WHERE id = $1`, st.ID, string(st.Status), st.PaidAmount, st.Balance, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("statements: update %d: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatementNotFound
	}
	return nil
}
