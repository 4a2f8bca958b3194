package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Store is the transactional persistence the ledger needs. Implementations
// must lock the record returned by GetRecordForUpdate until commit.
type Store interface {
	GetRecordForUpdate(ctx context.Context, productID int64) (Record, error)
	UpdateRecordQuantity(ctx context.Context, productID, quantity int64, at time.Time) error
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// Ledger is the only writer of inventory quantities. Every quantity change
// goes through Append so the cached quantity can always be rebuilt by
// folding the entries.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger using the wall clock.
func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// NewLedgerWithClock is used by tests and replays.
func NewLedgerWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

// Append applies m to the locked record and writes one ledger entry. It must
// run inside the caller's transaction; nothing is written when it fails.
func (l *Ledger) Append(ctx context.Context, store Store, m Movement) (Entry, error) {
	if m.Delta == 0 {
		return Entry{}, ErrInvalidQuantity
	}
	if !m.Kind.IsValid() || m.Kind.Inbound() != (m.Delta > 0) {
		return Entry{}, fmt.Errorf("%w: %s %+d", ErrInvalidKind, m.Kind, m.Delta)
	}

	rec, err := store.GetRecordForUpdate(ctx, m.ProductID)
	if err != nil {
		return Entry{}, err
	}
	if m.ExpectedBefore != nil && *m.ExpectedBefore != rec.Quantity {
		return Entry{}, fmt.Errorf("%w: product %d expected %d found %d", ErrStockChanged, m.ProductID, *m.ExpectedBefore, rec.Quantity)
	}
	after := rec.Quantity + m.Delta
	if after < 0 {
		return Entry{}, fmt.Errorf("%w: product %d has %d, change %d", ErrNegativeStock, m.ProductID, rec.Quantity, m.Delta)
	}

	now := l.now()
	entry := Entry{
		ProductID:      m.ProductID,
		Delta:          m.Delta,
		QuantityBefore: rec.Quantity,
		QuantityAfter:  after,
		Kind:           m.Kind,
		Reason:         m.Reason,
		Reference:      m.Reference,
		CreatedAt:      now,
	}
	if entry.QuantityAfter != entry.QuantityBefore+entry.Delta {
		return Entry{}, fmt.Errorf("inventory: ledger arithmetic mismatch for product %d", m.ProductID)
	}

	if err := store.UpdateRecordQuantity(ctx, m.ProductID, after, now); err != nil {
		return Entry{}, fmt.Errorf("inventory: update record %d: %w", m.ProductID, err)
	}
	id, err := store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("inventory: insert ledger entry: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// Fold replays entries from an empty state and returns the resulting
// quantity per product.
func Fold(entries []Entry) map[int64]int64 {
	out := make(map[int64]int64)
	for _, e := range entries {
		out[e.ProductID] += e.Delta
	}
	return out
}

// CompareFold returns drifts between cached records and folded quantities.
// Products present only in the ledger are reported with a zero cached value.
func CompareFold(records []Record, folded map[int64]int64) []Drift {
	var drifts []Drift
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		seen[rec.ProductID] = struct{}{}
		ledgerQty := folded[rec.ProductID]
		if ledgerQty != rec.Quantity {
			drifts = append(drifts, Drift{
				ProductID:  rec.ProductID,
				Cached:     rec.Quantity,
				Ledger:     ledgerQty,
				Difference: rec.Quantity - ledgerQty,
			})
		}
	}
	for productID, qty := range folded {
		if _, ok := seen[productID]; ok || qty == 0 {
			continue
		}
		drifts = append(drifts, Drift{ProductID: productID, Ledger: qty, Difference: -qty})
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].ProductID < drifts[j].ProductID })
	return drifts
}
