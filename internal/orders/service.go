package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-orders/internal/catalog"
	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
	"github.com/odyssey-erp/odyssey-orders/internal/observability"
	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
	"github.com/odyssey-erp/odyssey-orders/internal/platform/events"
	"github.com/odyssey-erp/odyssey-orders/internal/pricing"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

var tracer = otel.Tracer("github.com/odyssey-erp/odyssey-orders/internal/orders")

// NumberGenerator hands out order numbers. The coordinator treats them as opaque.
type NumberGenerator interface {
	Next(ctx context.Context, at time.Time) (string, error)
}

// EventPublisher receives events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config holds the per-deployment order rules.
type Config struct {
	Channels map[Channel]pricing.ChannelConfig
	// MaxAttempts bounds how often a transaction is re-run after a
	// serialization failure or a stale stock snapshot. Orders for the same
	// customer contend on its row, so bursts for one customer need more
	// attempts than orders spread across customers.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between re-runs.
	RetryBackoff time.Duration
	// AllowCancelCompleted permits cancelling orders that already completed.
	AllowCancelCompleted bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Channels: map[Channel]pricing.ChannelConfig{
			ChannelInternal:   pricing.Internal{FeeSchedule: pricing.FlatFee(50, 1000)},
			ChannelStorefront: pricing.Storefront{FeeSchedule: pricing.FlatFee(60, 2000), CouponsEnabled: true},
		},
		MaxAttempts:          3,
		RetryBackoff:         15 * time.Millisecond,
		AllowCancelCompleted: true,
	}
}

// Service provides business logic for orders.
type Service struct {
	repo      Repository
	numbers   NumberGenerator
	ledger    *inventory.Ledger
	cfg       Config
	publisher EventPublisher
	audit     AuditPort
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new service.
func NewService(repo Repository, numbers NumberGenerator, ledger *inventory.Ledger, cfg Config) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Service{
		repo:      repo,
		numbers:   numbers,
		ledger:    ledger,
		cfg:       cfg,
		publisher: events.Noop{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher sets the event sink used after commit.
func (s *Service) SetPublisher(p EventPublisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetAudit sets the audit logger.
func (s *Service) SetAudit(a AuditPort) {
	s.audit = a
}

// SetMetrics sets the prometheus collectors.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// SetLogger sets the logger.
func (s *Service) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetClock overrides the clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// placement is the outcome of one successful transaction attempt.
type placement struct {
	order    Order
	lowStock []inventory.Entry
}

// CreateOrder validates, prices and persists an order, taking its stock out
// of inventory. Either everything commits or nothing does.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.Int64("customer.id", req.CustomerID),
		attribute.String("order.channel", string(req.Channel)),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer span.End()

	placed, err := s.createOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.OrderRejected(rejectionReason(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("order.no", placed.order.OrderNo), attribute.Float64("order.total", placed.order.Total))

	s.metrics.OrderCreated(string(placed.order.Channel))
	for _, e := range placed.lowStock {
		s.logger.Warn("product at or below minimum stock",
			slog.Int64("product_id", e.ProductID),
			slog.Int64("quantity", e.QuantityAfter),
			slog.String("order_no", placed.order.OrderNo))
	}
	s.notify(ctx, EventOrderCreated, placed.order, orderPayload(placed.order))
	s.record(ctx, "order:create", placed.order, map[string]any{
		"channel": placed.order.Channel,
		"total":   placed.order.Total,
		"lines":   len(placed.order.Lines),
	})
	order := placed.order
	return &order, nil
}

func (s *Service) createOrder(ctx context.Context, req CreateRequest) (placement, error) {
	if err := ValidateCreateRequest(req); err != nil {
		return placement{}, err
	}
	channelCfg, ok := s.cfg.Channels[req.Channel]
	if !ok {
		return placement{}, fmt.Errorf("%w: %q", ErrUnknownChannel, req.Channel)
	}
	kind, err := ledgerKind(channelCfg)
	if err != nil {
		return placement{}, err
	}
	lines := MergeLines(req.Lines)

	now := s.now()
	var orderNo string
	var placed placement
	err = s.retry(ctx, "create_order", func() error {
		if orderNo == "" {
			no, err := s.numbers.Next(ctx, now)
			if err != nil {
				return fmt.Errorf("orders: allocate order number: %w", err)
			}
			orderNo = no
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := s.place(ctx, tx, req, lines, channelCfg, kind, orderNo, now)
			if err != nil {
				return err
			}
			placed = p
			return nil
		})
		if errors.Is(err, errOrderNumberTaken) {
			s.logger.Warn("order number already used, allocating another", slog.String("order_no", orderNo))
			orderNo = ""
		}
		return err
	})
	return placed, err
}

func (s *Service) place(ctx context.Context, tx TxRepository, req CreateRequest, lines []CreateLineReq,
	channelCfg pricing.ChannelConfig, kind inventory.Kind, orderNo string, now time.Time) (placement, error) {
	if req.IdempotencyKey != "" {
		if err := tx.ReserveKey(ctx, req.IdempotencyKey, "orders", now); err != nil {
			return placement{}, err
		}
	}

	customer, err := tx.GetCustomerForUpdate(ctx, req.CustomerID)
	if err != nil {
		return placement{}, err
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	snaps, err := catalog.Load(ctx, tx, ids)
	if err != nil {
		return placement{}, err
	}

	var shortages []Shortage
	var inactive []int64
	priceLines := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		snap := snaps[l.ProductID]
		if !snap.Product.IsActive {
			inactive = append(inactive, l.ProductID)
			continue
		}
		if snap.Stock.Quantity < l.Quantity {
			shortages = append(shortages, Shortage{ProductID: l.ProductID, Requested: l.Quantity, Available: snap.Stock.Quantity})
		}
		priceLines = append(priceLines, pricing.Line{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: snap.Product.Price})
	}
	if len(inactive) > 0 {
		return placement{}, fmt.Errorf("%w: %v", ErrProductInactive, inactive)
	}
	if len(shortages) > 0 {
		return placement{}, newInsufficientInventory(shortages)
	}

	var coupon *pricing.Coupon
	if raw := normalizedCoupon(req.CouponCode); raw != "" {
		code := pricing.NormalizeCouponCode(raw)
		accepts, err := pricing.AcceptsCoupons(channelCfg)
		if err != nil {
			return placement{}, err
		}
		if !accepts {
			return placement{}, pricing.RejectCoupon(code, pricing.ReasonChannel)
		}
		c, err := tx.GetCouponForUpdate(ctx, code)
		if errors.Is(err, errCouponNotFound) {
			return placement{}, pricing.RejectCoupon(code, pricing.ReasonUnknown)
		}
		if err != nil {
			return placement{}, err
		}
		coupon = &c
	}

	quote, err := pricing.Calculate(pricing.Input{
		Lines:             priceLines,
		GroupDiscountRate: customer.DiscountRate,
		Coupon:            coupon,
		Channel:           channelCfg,
		Now:               now,
	})
	if err != nil {
		return placement{}, err
	}

	order := Order{
		OrderNo:     orderNo,
		CustomerID:  customer.ID,
		Channel:     req.Channel,
		Status:      StatusPending,
		Subtotal:    quote.Subtotal,
		Discount:    quote.Discount,
		DeliveryFee: quote.DeliveryFee,
		Total:       quote.Total,
		Notes:       req.Notes,
		OrderDate:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
		order.CouponCode = &coupon.Code
	}
	order.ID, err = tx.InsertOrder(ctx, order)
	if err != nil {
		return placement{}, fmt.Errorf("orders: insert order: %w", err)
	}
	for _, pl := range quote.Lines {
		item := LineItem{
			OrderID:   order.ID,
			ProductID: pl.ProductID,
			Quantity:  pl.Quantity,
			UnitPrice: pl.UnitPrice,
			Subtotal:  pl.Subtotal,
		}
		item.ID, err = tx.InsertLineItem(ctx, item)
		if err != nil {
			return placement{}, fmt.Errorf("orders: insert line: %w", err)
		}
		order.Lines = append(order.Lines, item)
	}

	var low []inventory.Entry
	for _, l := range lines {
		snap := snaps[l.ProductID]
		expected := snap.Stock.Quantity
		entry, err := s.ledger.Append(ctx, tx, inventory.Movement{
			ProductID:      l.ProductID,
			Delta:          -l.Quantity,
			Kind:           kind,
			Reason:         "order " + orderNo,
			Reference:      orderNo,
			ExpectedBefore: &expected,
		})
		if err != nil {
			return placement{}, err
		}
		if snap.Stock.MinStock > 0 && entry.QuantityAfter <= snap.Stock.MinStock {
			low = append(low, entry)
		}
	}

	if err := tx.TouchCustomerLastOrder(ctx, customer.ID, now); err != nil {
		return placement{}, fmt.Errorf("orders: touch customer: %w", err)
	}
	if coupon != nil {
		if err := tx.IncrementCouponUsage(ctx, coupon.ID); err != nil {
			if errors.Is(err, errCouponExhausted) {
				return placement{}, pricing.RejectCoupon(coupon.Code, pricing.ReasonExhausted)
			}
			return placement{}, err
		}
	}
	return placement{order: order, lowStock: low}, nil
}

// UpdateOrderStatus moves an order to req.Status. A paid amount records a
// cleared payment linked to the order. Moving to cancelled returns the stock
// but keeps the order.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, req UpdateStatusRequest) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateOrderStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status", string(req.Status)),
	))
	defer span.End()

	if err := ValidateUpdateStatusRequest(req); err != nil {
		return nil, err
	}
	now := s.now()
	var (
		order    Order
		previous Status
		restored int64
		changed  bool
	)
	err := s.retry(ctx, "update_status", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			o, err := tx.GetOrderForUpdate(ctx, id)
			if err != nil {
				return err
			}
			previous = o.Status
			if !o.Status.CanTransitionTo(req.Status, s.cfg.AllowCancelCompleted) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, o.Status, req.Status)
			}
			if o.Status == req.Status && req.PaidAmount == nil {
				order, changed = o, false
				return nil
			}

			restored = 0
			if req.Status == StatusCancelled && o.Status != StatusCancelled {
				if restored, err = s.restoreLines(ctx, tx, o); err != nil {
					return err
				}
			}

			upd := StatusUpdate{Status: req.Status, PaidAmount: o.PaidAmount, At: now}
			if req.PaidAmount != nil {
				amount := pricing.RoundMoney(*req.PaidAmount)
				pid, err := tx.InsertPayment(ctx, Payment{
					OrderID:    o.ID,
					CustomerID: o.CustomerID,
					Amount:     amount,
					Status:     PaymentCleared,
					PaidAt:     now,
				})
				if err != nil {
					return fmt.Errorf("orders: record payment: %w", err)
				}
				upd.PaymentID = &pid
				upd.PaidAmount = pricing.RoundMoney(o.PaidAmount + amount)
				o.PaymentID = &pid
			}
			if err := tx.UpdateOrderStatus(ctx, o.ID, upd); err != nil {
				return err
			}
			o.Status = upd.Status
			o.PaidAmount = upd.PaidAmount
			o.UpdatedAt = now
			order, changed = o, true
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if changed {
		if req.Status == StatusCancelled && previous != StatusCancelled {
			s.metrics.OrderCancelled(restored)
		}
		payload := orderPayload(order)
		payload["previous_status"] = previous
		payload["restored_quantity"] = restored
		s.notify(ctx, EventOrderStatusChanged, order, payload)
		s.record(ctx, "order:status", order, map[string]any{
			"from":        previous,
			"to":          order.Status,
			"paid_amount": order.PaidAmount,
		})
	}
	return &order, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns a page of orders.
func (s *Service) ListOrders(ctx context.Context, req ListRequest) ([]Order, shared.Pagination, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *req.Status)
	}
	req.Page = shared.NewPagination(req.Page.Page, req.Page.PerPage, 0)
	list, total, err := s.repo.ListOrders(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, req.Page.WithTotal(total), nil
}

// retry re-runs fn while it fails with a serialization conflict, a stale
// stock snapshot or a duplicate order number, at most cfg.MaxAttempts times.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		s.metrics.TxRetried(op)
		s.logger.Debug("retrying order transaction", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		if s.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrStockContention, err)
}

func isRetryable(err error) bool {
	return errors.Is(err, inventory.ErrStockChanged) || errors.Is(err, errOrderNumberTaken) || db.IsRetryable(err)
}

func ledgerKind(cfg pricing.ChannelConfig) (inventory.Kind, error) {
	switch cfg.(type) {
	case pricing.Internal:
		return inventory.KindDelivery, nil
	case pricing.Storefront:
		return inventory.KindSale, nil
	default:
		return "", fmt.Errorf("orders: unsupported channel config %T", cfg)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrCouponInvalid):
		return "coupon_invalid"
	case errors.Is(err, ErrStockContention):
		return "contention"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return "duplicate"
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return "validation"
	case shared.KindInternal:
		return "internal"
	default:
		return "other"
	}
}
