package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/odyssey-orders/internal/catalog"
	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
	"github.com/odyssey-erp/odyssey-orders/internal/platform/events"
	"github.com/odyssey-erp/odyssey-orders/internal/pricing"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

var errDiskFull = errors.New("disk full")

type memoryState struct {
	products  map[int64]catalog.Product
	records   map[int64]inventory.Record
	entries   []inventory.Entry
	customers map[int64]Customer
	coupons   map[string]pricing.Coupon
	orders    map[int64]Order
	payments  []Payment
	keys      map[string]time.Time
	nextID    int64
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		products:  make(map[int64]catalog.Product, len(s.products)),
		records:   make(map[int64]inventory.Record, len(s.records)),
		entries:   append([]inventory.Entry(nil), s.entries...),
		customers: make(map[int64]Customer, len(s.customers)),
		coupons:   make(map[string]pricing.Coupon, len(s.coupons)),
		orders:    make(map[int64]Order, len(s.orders)),
		payments:  append([]Payment(nil), s.payments...),
		keys:      make(map[string]time.Time, len(s.keys)),
		nextID:    s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.orders {
		v.Lines = append([]LineItem(nil), v.Lines...)
		c.orders[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	return c
}

// memoryRepo serialises transactions and restores the previous state when
// the callback fails, like a rolled back pg transaction.
type memoryRepo struct {
	mu      sync.Mutex
	state   memoryState
	failOn  string
	onLock  func(productID int64, rec *inventory.Record)
	txCount int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		products:  map[int64]catalog.Product{},
		records:   map[int64]inventory.Record{},
		customers: map[int64]Customer{},
		coupons:   map[string]pricing.Coupon{},
		orders:    map[int64]Order{},
		keys:      map[string]time.Time{},
	}}
}

func (r *memoryRepo) addProduct(id int64, price float64, qty, minStock int64) {
	r.state.products[id] = catalog.Product{ID: id, Code: fmt.Sprintf("P%03d", id), Name: fmt.Sprintf("Product %d", id), Price: price, IsActive: true}
	r.state.records[id] = inventory.Record{ProductID: id, Quantity: qty, MinStock: minStock}
	if qty > 0 {
		r.state.nextID++
		r.state.entries = append(r.state.entries, inventory.Entry{
			ID: r.state.nextID, ProductID: id, Delta: qty, QuantityAfter: qty, Kind: inventory.KindRestock, Reason: "opening stock",
		})
	}
}

// addUntrackedProduct registers a product that has no inventory record yet.
func (r *memoryRepo) addUntrackedProduct(id int64, price float64) {
	r.state.products[id] = catalog.Product{ID: id, Code: fmt.Sprintf("P%03d", id), Name: fmt.Sprintf("Product %d", id), Price: price, IsActive: true}
}

// drift compares cached quantities against a replay of the ledger.
func (r *memoryRepo) drift() []inventory.Drift {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]inventory.Record, 0, len(r.state.records))
	for _, rec := range r.state.records {
		records = append(records, rec)
	}
	return inventory.CompareFold(records, inventory.Fold(r.state.entries))
}

func (r *memoryRepo) addCustomer(id int64, rate float64) {
	r.state.customers[id] = Customer{ID: id, Name: fmt.Sprintf("Customer %d", id), DiscountRate: rate}
}

func (r *memoryRepo) quantity(productID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.records[productID].Quantity
}

func (r *memoryRepo) entries() []inventory.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.Entry(nil), r.state.entries...)
}

func (r *memoryRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.orders)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	saved := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = saved
		return err
	}
	return nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *memoryRepo) ListOrders(_ context.Context, req ListRequest) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.state.orders {
		if req.CustomerID != nil && o.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	start := req.Page.Offset()
	if start > total {
		start = total
	}
	end := start + req.Page.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) st() *memoryState { return &tx.repo.state }

func (tx *memoryTx) id() int64 {
	tx.st().nextID++
	return tx.st().nextID
}

func (tx *memoryTx) LoadSnapshot(_ context.Context, ids []int64) ([]catalog.Snapshot, error) {
	var out []catalog.Snapshot
	for _, id := range ids {
		p, ok := tx.st().products[id]
		if !ok {
			continue
		}
		rec := tx.st().records[id]
		out = append(out, catalog.Snapshot{
			Product: p,
			Stock:   catalog.StockLevel{ProductID: id, Quantity: rec.Quantity, MinStock: rec.MinStock},
		})
	}
	return out, nil
}

func (tx *memoryTx) GetRecordForUpdate(_ context.Context, productID int64) (inventory.Record, error) {
	rec, ok := tx.st().records[productID]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	if tx.repo.onLock != nil {
		tx.repo.onLock(productID, &rec)
		tx.st().records[productID] = rec
	}
	return rec, nil
}

func (tx *memoryTx) UpdateRecordQuantity(_ context.Context, productID, quantity int64, at time.Time) error {
	if quantity < 0 {
		return fmt.Errorf("check constraint inventory_quantity_check")
	}
	rec := tx.st().records[productID]
	rec.Quantity = quantity
	rec.UpdatedAt = at
	tx.st().records[productID] = rec
	return nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, e inventory.Entry) (int64, error) {
	if tx.repo.failOn == "entry" {
		return 0, errDiskFull
	}
	e.ID = tx.id()
	tx.st().entries = append(tx.st().entries, e)
	return e.ID, nil
}

func (tx *memoryTx) GetCustomerForUpdate(_ context.Context, id int64) (Customer, error) {
	c, ok := tx.st().customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (tx *memoryTx) TouchCustomerLastOrder(_ context.Context, customerID int64, at time.Time) error {
	c := tx.st().customers[customerID]
	c.LastOrderAt = &at
	tx.st().customers[customerID] = c
	return nil
}

func (tx *memoryTx) GetCouponForUpdate(_ context.Context, code string) (pricing.Coupon, error) {
	c, ok := tx.st().coupons[code]
	if !ok {
		return pricing.Coupon{}, errCouponNotFound
	}
	return c, nil
}

func (tx *memoryTx) IncrementCouponUsage(_ context.Context, couponID int64) error {
	for code, c := range tx.st().coupons {
		if c.ID != couponID {
			continue
		}
		if c.UsedCount >= c.UsageLimit {
			return errCouponExhausted
		}
		c.UsedCount++
		tx.st().coupons[code] = c
		return nil
	}
	return errCouponNotFound
}

func (tx *memoryTx) ReserveKey(_ context.Context, key, scope string, at time.Time) error {
	k := scope + "|" + key
	if _, ok := tx.st().keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	tx.st().keys[k] = at
	return nil
}

func (tx *memoryTx) InsertOrder(_ context.Context, o Order) (int64, error) {
	for _, existing := range tx.st().orders {
		if existing.OrderNo == o.OrderNo {
			return 0, fmt.Errorf("%w: %s", errOrderNumberTaken, o.OrderNo)
		}
	}
	o.ID = tx.id()
	o.Lines = nil
	tx.st().orders[o.ID] = o
	return o.ID, nil
}

func (tx *memoryTx) InsertLineItem(_ context.Context, item LineItem) (int64, error) {
	if tx.repo.failOn == "line" {
		return 0, errDiskFull
	}
	item.ID = tx.id()
	o := tx.st().orders[item.OrderID]
	o.Lines = append(o.Lines, item)
	tx.st().orders[item.OrderID] = o
	return item.ID, nil
}

func (tx *memoryTx) GetOrderForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := tx.st().orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o.Lines = append([]LineItem(nil), o.Lines...)
	return o, nil
}

func (tx *memoryTx) UpdateOrderStatus(_ context.Context, id int64, upd StatusUpdate) error {
	o, ok := tx.st().orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = upd.Status
	o.PaidAmount = upd.PaidAmount
	if upd.PaymentID != nil {
		o.PaymentID = upd.PaymentID
	}
	o.UpdatedAt = upd.At
	tx.st().orders[id] = o
	return nil
}

func (tx *memoryTx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := tx.st().orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(tx.st().orders, id)
	return nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	p.ID = tx.id()
	tx.st().payments = append(tx.st().payments, p)
	return p.ID, nil
}

type sequenceNumbers struct {
	n atomic.Int64
}

func (s *sequenceNumbers) Next(_ context.Context, at time.Time) (string, error) {
	return fmt.Sprintf("ORD-%s-%06d", at.Format("20060102"), s.n.Add(1)), nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}
