package catalog

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
)

// PgReader reads snapshots with PostgreSQL. Bound to a transaction, the
// inventory rows it returns stay locked until commit; rows are locked in
// ascending product id order so concurrent orders cannot deadlock on them.
type PgReader struct {
	q db.Querier
}

// NewPgReader wraps a pool or transaction.
func NewPgReader(q db.Querier) *PgReader {
	return &PgReader{q: q}
}

// lockSQL takes the inventory row locks before the snapshot is read.
const lockSQL = `SELECT product_id FROM inventory
WHERE product_id = ANY($1)
ORDER BY product_id
FOR UPDATE`

// A product without an inventory row has nothing on hand.
const snapshotSQL = `SELECT p.id, p.code, p.name, p.price, p.cost, p.is_active,
       COALESCE(i.quantity, 0), COALESCE(i.min_stock, 0)
FROM products p
LEFT JOIN inventory i ON i.product_id = p.id
WHERE p.id = ANY($1)
ORDER BY p.id`

// LoadSnapshot implements Reader.
func (r *PgReader) LoadSnapshot(ctx context.Context, productIDs []int64) ([]Snapshot, error) {
	if _, err := r.q.Exec(ctx, lockSQL, productIDs); err != nil {
		return nil, fmt.Errorf("catalog: lock inventory: %w", err)
	}
	rows, err := r.q.Query(ctx, snapshotSQL, productIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog: query snapshot: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0, len(productIDs))
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(
			&s.Product.ID, &s.Product.Code, &s.Product.Name, &s.Product.Price, &s.Product.Cost, &s.Product.IsActive,
			&s.Stock.Quantity, &s.Stock.MinStock,
		); err != nil {
			return nil, fmt.Errorf("catalog: scan snapshot: %w", err)
		}
		s.Stock.ProductID = s.Product.ID
		out = append(out, s)
	}
	return out, rows.Err()
}
