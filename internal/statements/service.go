package statements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
	"github.com/odyssey-erp/odyssey-orders/internal/pricing"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	ExistsForPeriod(ctx context.Context, customerID int64, periodStart time.Time) (bool, error)
	SumPeriod(ctx context.Context, customerID int64, start, end time.Time) (Totals, error)
	Insert(ctx context.Context, st Statement) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Statement, error)
	Update(ctx context.Context, st Statement) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Statement, error)
	CustomersWithActivity(ctx context.Context, start, end time.Time) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service generates statements and moves them through collections.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Generate creates the statement of customerID for period. A statement is
// generated at most once per customer and period; a second call fails with
// ErrAlreadyExists.
func (s *Service) Generate(ctx context.Context, customerID int64, period shared.Period) (Statement, error) {
	if customerID <= 0 {
		return Statement{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	if period.IsZero() {
		return Statement{}, shared.ErrInvalidPeriod
	}
	start, end := period.Start(), period.End()
	now := s.now()

	var st Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCustomerNotFound
		}
		exists, err := tx.ExistsForPeriod(ctx, customerID, start)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
		totals, err := tx.SumPeriod(ctx, customerID, start, end)
		if err != nil {
			return err
		}
		st = Statement{
			CustomerID:  customerID,
			Period:      period.String(),
			PeriodStart: start,
			PeriodEnd:   end,
			TotalOrders: totals.Orders,
			TotalAmount: pricing.RoundMoney(totals.OrderAmount),
			PaidAmount:  pricing.RoundMoney(totals.Paid),
			GeneratedAt: now,
			UpdatedAt:   now,
		}
		st.Balance = pricing.RoundMoney(st.TotalAmount - st.PaidAmount)
		st.Status = StatusDraft
		if st.Balance > 0 {
			st.Status = StatusOverdue
		}
		st.ID, err = tx.Insert(ctx, st)
		if db.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	})
	if err != nil {
		return Statement{}, err
	}
	s.record(ctx, "statement:generate", st)
	return st, nil
}

// UpdateStatus moves a statement to req.Status. A paid amount replaces the
// recorded one; moving to paid without an amount settles the full total.
// The paid amount never exceeds the total, and a paid statement has no
// balance left.
func (s *Service) UpdateStatus(ctx context.Context, id int64, req UpdateStatusRequest) (Statement, error) {
	if !req.Status.IsValid() {
		return Statement{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, req.Status)
	}
	if req.PaidAmount != nil && *req.PaidAmount < 0 {
		return Statement{}, ErrInvalidPaidAmount
	}
	var st Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransitionTo(req.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, cur.Status, req.Status)
		}
		switch {
		case req.PaidAmount != nil:
			cur.PaidAmount = pricing.RoundMoney(*req.PaidAmount)
		case req.Status == StatusPaid:
			cur.PaidAmount = cur.TotalAmount
		}
		if cur.PaidAmount > cur.TotalAmount {
			return fmt.Errorf("%w: %.2f exceeds total %.2f", ErrInvalidPaidAmount, cur.PaidAmount, cur.TotalAmount)
		}
		cur.Balance = pricing.RoundMoney(cur.TotalAmount - cur.PaidAmount)
		if req.Status == StatusPaid && cur.Balance > 0 {
			return fmt.Errorf("%w: %.2f still outstanding", ErrInvalidPaidAmount, cur.Balance)
		}
		cur.Status = req.Status
		cur.UpdatedAt = s.now()
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		st = cur
		return nil
	})
	if err != nil {
		return Statement{}, err
	}
	s.record(ctx, "statement:status", st)
	return st, nil
}

// Get returns a statement by id.
func (s *Service) Get(ctx context.Context, id int64) (Statement, error) {
	return s.repo.Get(ctx, id)
}

// ActiveCustomers lists customers with completed orders or cleared payments
// in period.
func (s *Service) ActiveCustomers(ctx context.Context, period shared.Period) ([]int64, error) {
	return s.repo.CustomersWithActivity(ctx, period.Start(), period.End())
}

// IsSkippable reports whether a batch run may treat err as already done.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func (s *Service) record(ctx context.Context, action string, st Statement) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(context.WithoutCancel(ctx), shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "statement",
		EntityID: strconv.FormatInt(st.ID, 10),
		Meta: map[string]any{
			"customer_id": st.CustomerID,
			"period":      st.Period,
			"status":      st.Status,
			"balance":     st.Balance,
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit statement", slog.String("action", action), slog.Any("error", err))
	}
}
