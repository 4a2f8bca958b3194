// Package catalog reads product prices and stock levels as one consistent
// snapshot for the order transaction.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Product is a sellable item.
type Product struct {
	ID       int64
	Code     string
	Name     string
	Price    float64
	Cost     float64
	IsActive bool
}

// StockLevel is the cached on-hand quantity for a product.
type StockLevel struct {
	ProductID int64
	Quantity  int64
	MinStock  int64
}

// Snapshot pairs a product with its stock as read in one statement.
type Snapshot struct {
	Product Product
	Stock   StockLevel
}

// Snapshots indexes snapshots by product id.
type Snapshots map[int64]Snapshot

// ErrProductNotFound is matched by MissingProductsError.
var ErrProductNotFound = shared.NewError(shared.KindNotFound, "product not found")

// MissingProductsError lists every requested id that does not exist.
type MissingProductsError struct {
	IDs []int64
}

func (e *MissingProductsError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("product not found: %s", strings.Join(parts, ", "))
}

// Is lets errors.Is(err, ErrProductNotFound) match.
func (e *MissingProductsError) Is(target error) bool { return target == ErrProductNotFound }

// ErrorKind implements shared.Kinded.
func (e *MissingProductsError) ErrorKind() shared.Kind { return shared.KindNotFound }

// Details implements httpx.Detailed.
func (e *MissingProductsError) Details() map[string]any {
	return map[string]any{"product_ids": e.IDs}
}

// Reader loads snapshots in a single read. Implementations bound to a
// transaction lock the stock rows they return.
type Reader interface {
	LoadSnapshot(ctx context.Context, productIDs []int64) ([]Snapshot, error)
}

// Load de-duplicates ids, reads them once and fails if any id is unknown.
// A partial match fails the whole request.
func Load(ctx context.Context, r Reader, productIDs []int64) (Snapshots, error) {
	ids := uniqueSorted(productIDs)
	if len(ids) == 0 {
		return Snapshots{}, nil
	}
	rows, err := r.LoadSnapshot(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: load snapshot: %w", err)
	}
	out := make(Snapshots, len(rows))
	for _, row := range rows {
		out[row.Product.ID] = row
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingProductsError{IDs: missing}
	}
	return out, nil
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
