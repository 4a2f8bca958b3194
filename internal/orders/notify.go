package orders

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/events"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Event types published after commit.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
)

const publishTimeout = 3 * time.Second

func orderPayload(o Order) map[string]any {
	lines := make([]map[string]any, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = map[string]any{
			"product_id": l.ProductID,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice,
		}
	}
	return map[string]any{
		"order_id":    o.ID,
		"order_no":    o.OrderNo,
		"customer_id": o.CustomerID,
		"channel":     o.Channel,
		"status":      o.Status,
		"total":       o.Total,
		"lines":       lines,
	}
}

// notify publishes an event. The order is already committed, so a broker
// failure is logged and never returned.
func (s *Service) notify(ctx context.Context, eventType string, o Order, payload map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	evt := events.New(eventType, o.OrderNo, payload, s.now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("publish order event",
			slog.String("type", eventType),
			slog.String("order_no", o.OrderNo),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, o Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["order_no"] = o.OrderNo
	err := s.audit.Record(context.WithoutCancel(ctx), shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(o.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit order", slog.String("action", action), slog.Any("error", err))
	}
}
