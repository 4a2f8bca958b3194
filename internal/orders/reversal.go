package orders

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
)

// CancelOrder returns the stock of an order to inventory and deletes the
// order. Lines and ledger entries are written in one transaction. An order
// that was already cancelled through UpdateOrderStatus has given its stock
// back and is only deleted.
func (s *Service) CancelOrder(ctx context.Context, id int64) (*CancelResult, error) {
	ctx, span := tracer.Start(ctx, "orders.CancelOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var (
		order    Order
		restored int64
	)
	err := s.retry(ctx, "cancel_order", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			o, err := tx.GetOrderForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if o.Status == StatusCompleted && !s.cfg.AllowCancelCompleted {
				return fmt.Errorf("%w: completed orders cannot be cancelled", ErrInvalidStatus)
			}
			restored = 0
			if o.Status != StatusCancelled {
				if restored, err = s.restoreLines(ctx, tx, o); err != nil {
					return err
				}
			}
			if err := tx.DeleteOrder(ctx, o.ID); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.OrderCancelled(restored)
	payload := orderPayload(order)
	payload["restored_quantity"] = restored
	s.notify(ctx, EventOrderCancelled, order, payload)
	s.record(ctx, "order:cancel", order, map[string]any{"restored_quantity": restored})

	return &CancelResult{OrderID: order.ID, OrderNo: order.OrderNo, RestoredQuantity: restored}, nil
}

// restoreLines posts one return entry per line, in product id order so
// concurrent reversals lock rows the same way order placement does.
func (s *Service) restoreLines(ctx context.Context, tx TxRepository, o Order) (int64, error) {
	lines := make([]LineItem, len(o.Lines))
	copy(lines, o.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if _, err := s.ledger.Append(ctx, tx, inventory.Movement{
			ProductID: l.ProductID,
			Delta:     l.Quantity,
			Kind:      inventory.KindReturn,
			Reason:    "cancel order " + o.OrderNo,
			Reference: o.OrderNo,
		}); err != nil {
			return 0, fmt.Errorf("orders: restore product %d: %w", l.ProductID, err)
		}
		total += l.Quantity
	}
	return total, nil
}
