package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Store
	ReserveKey(ctx context.Context, key, scope string, at time.Time) error
	FoldLedger(ctx context.Context) (map[int64]int64, error)
	ListRecords(ctx context.Context) ([]Record, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, filter StockCardFilter) ([]Entry, int, error)
	ListLowStock(ctx context.Context) ([]Record, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations outside of orders.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, ledger *Ledger, audit AuditPort, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger}
}

// Restock posts inbound stock through the ledger.
func (s *Service) Restock(ctx context.Context, input RestockInput) (Entry, error) {
	if input.ProductID <= 0 {
		return Entry{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	reason := input.Reason
	if reason == "" {
		reason = "restock"
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.Reference != "" {
			key := fmt.Sprintf("restock:%d:%s", input.ProductID, input.Reference)
			if err := tx.ReserveKey(ctx, key, "inventory", s.ledger.now()); err != nil {
				return err
			}
		}
		var err error
		entry, err = s.ledger.Append(ctx, tx, Movement{
			ProductID: input.ProductID,
			Delta:     input.Quantity,
			Kind:      KindRestock,
			Reason:    reason,
			Reference: input.Reference,
		})
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "inventory:restock",
			Entity:   "inventory_ledger",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"product_id": entry.ProductID,
				"quantity":   entry.Delta,
				"after":      entry.QuantityAfter,
				"reference":  entry.Reference,
			},
		}); err != nil {
			s.logger.Warn("audit restock", slog.Any("error", err))
		}
	}
	return entry, nil
}

// StockCard lists ledger entries for one product, newest first.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, shared.Pagination, error) {
	if filter.ProductID <= 0 {
		return nil, shared.Pagination{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: to before from", shared.ErrValidation)
	}
	filter.Page = shared.NewPagination(filter.Page.Page, filter.Page.PerPage, 0)
	entries, total, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, filter.Page.WithTotal(total), nil
}

// Reconcile folds every product's ledger and compares it to the cached
// quantity. Both reads share one snapshot.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		records, err := tx.ListRecords(ctx)
		if err != nil {
			return err
		}
		folded, err := tx.FoldLedger(ctx)
		if err != nil {
			return err
		}
		drifts = CompareFold(records, folded)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: reconcile: %w", err)
	}
	for _, d := range drifts {
		s.logger.Error("inventory ledger drift",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("cached", d.Cached),
			slog.Int64("ledger", d.Ledger))
	}
	return drifts, nil
}

// LowStock lists products at or below their minimum.
func (s *Service) LowStock(ctx context.Context) ([]Record, error) {
	return s.repo.ListLowStock(ctx)
}
