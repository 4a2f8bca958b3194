package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PgStore implements Store on a pool or transaction. Orders embed it in
// their own transaction so stock changes commit with the order.
type PgStore struct {
	q db.Querier
}

// NewPgStore wraps q.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

type txRepo struct {
	*PgStore
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PgStore: NewPgStore(tx), tx: tx})
	})
}

// GetRecordForUpdate implements Store.
func (s *PgStore) GetRecordForUpdate(ctx context.Context, productID int64) (Record, error) {
	var rec Record
	err := s.q.QueryRow(ctx, `SELECT product_id, quantity, min_stock, updated_at
FROM inventory WHERE product_id = $1 FOR UPDATE`, productID).
		Scan(&rec.ProductID, &rec.Quantity, &rec.MinStock, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: product %d", ErrRecordNotFound, productID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("inventory: lock record %d: %w", productID, err)
	}
	return rec, nil
}

// UpdateRecordQuantity implements Store.
func (s *PgStore) UpdateRecordQuantity(ctx context.Context, productID, quantity int64, at time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE inventory SET quantity = $2, updated_at = $3 WHERE product_id = $1`, productID, quantity, at)
	if err != nil {
		if db.IsCheckViolation(err) {
			return ErrNegativeStock
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", ErrRecordNotFound, productID)
	}
	return nil
}

// InsertEntry implements Store.
func (s *PgStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO inventory_ledger
    (product_id, delta, quantity_before, quantity_after, kind, reason, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
RETURNING id`,
		e.ProductID, e.Delta, e.QuantityBefore, e.QuantityAfter, string(e.Kind), e.Reason, e.Reference, e.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) ReserveKey(ctx context.Context, key, scope string, at time.Time) error {
	return shared.ReserveKey(ctx, t.tx, key, scope, at)
}

func (t *txRepo) FoldLedger(ctx context.Context) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT product_id, SUM(delta)::bigint FROM inventory_ledger GROUP BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var productID, sum int64
		if err := rows.Scan(&productID, &sum); err != nil {
			return nil, err
		}
		out[productID] = sum
	}
	return out, rows.Err()
}

func (t *txRepo) ListRecords(ctx context.Context) ([]Record, error) {
	return queryRecords(ctx, t.tx, `SELECT product_id, quantity, min_stock, updated_at FROM inventory ORDER BY product_id`)
}

// ListLowStock returns records at or below their minimum.
func (r *Repository) ListLowStock(ctx context.Context) ([]Record, error) {
	return queryRecords(ctx, r.pool, `SELECT product_id, quantity, min_stock, updated_at
FROM inventory WHERE min_stock > 0 AND quantity <= min_stock ORDER BY quantity, product_id`)
}

// ListEntries returns one page of ledger entries and the total count.
func (r *Repository) ListEntries(ctx context.Context, filter StockCardFilter) ([]Entry, int, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	const where = `WHERE product_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_ledger `+where, filter.ProductID, from, to).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count ledger: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, delta, quantity_before, quantity_after, kind, reason, COALESCE(reference, ''), created_at
FROM inventory_ledger `+where+`
ORDER BY id DESC LIMIT $4 OFFSET $5`, filter.ProductID, from, to, filter.Page.PerPage, filter.Page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: list ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Delta, &e.QuantityBefore, &e.QuantityAfter, &kind, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func queryRecords(ctx context.Context, q db.Querier, sql string) ([]Record, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ProductID, &rec.Quantity, &rec.MinStock, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
