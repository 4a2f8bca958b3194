package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-orders/internal/platform/db"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// conflictingRepo fails the next `failures` commits the way Postgres does
// when a concurrent transaction touched the same rows under RepeatableRead.
// The work done inside the transaction is rolled back.
type conflictingRepo struct {
	*memoryRepo
	failures int
}

func (r *conflictingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.memoryRepo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if r.failures > 0 {
			r.failures--
			return &pgconn.PgError{Code: db.CodeSerializationFailure, Message: "could not serialize access due to concurrent update"}
		}
		return nil
	})
}

func newConflictingRepo() *conflictingRepo {
	repo := newMemoryRepo()
	repo.addProduct(1, 100, 5, 0)
	repo.addCustomer(7, 0)
	return &conflictingRepo{memoryRepo: repo}
}

func assertSerializationFailure(t *testing.T, err error) {
	t.Helper()
	require.ErrorIs(t, err, ErrStockContention)
	assert.Equal(t, shared.KindBusiness, shared.KindOf(err))
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, db.CodeSerializationFailure, pgErr.Code)
}

func TestCreateOrderRetriesSerializationFailure(t *testing.T) {
	repo := newConflictingRepo()
	repo.failures = 1
	svc, pub, _ := newTestService(repo)

	order, err := svc.CreateOrder(context.Background(), CreateRequest{
		CustomerID: 7, Channel: ChannelInternal, Lines: []CreateLineReq{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20250310-000001", order.OrderNo)
	assert.Equal(t, 2, repo.txCount)
	assert.Equal(t, int64(3), repo.quantity(1))
	assert.Equal(t, 1, repo.orderCount())
	assert.Len(t, repo.entries(), 2)
	assert.Empty(t, repo.drift())
	assert.Equal(t, []string{EventOrderCreated}, pub.types())
}

func TestCreateOrderSerializationFailuresExhausted(t *testing.T) {
	repo := newConflictingRepo()
	repo.failures = 10
	svc, pub, _ := newTestService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		CustomerID: 7, Channel: ChannelInternal, Lines: []CreateLineReq{{ProductID: 1, Quantity: 2}},
	})
	assertSerializationFailure(t, err)
	assert.Equal(t, DefaultConfig().MaxAttempts, repo.txCount)
	assert.Equal(t, int64(5), repo.quantity(1))
	assert.Zero(t, repo.orderCount())
	assert.Len(t, repo.entries(), 1)
	assert.Empty(t, pub.types())
}

func TestCancelOrderRetriesSerializationFailure(t *testing.T) {
	repo := newConflictingRepo()
	svc, _, _ := newTestService(repo)
	order := seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 4})
	require.Equal(t, int64(1), repo.quantity(1))

	repo.failures = 1
	before := repo.txCount
	res, err := svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, before+2, repo.txCount)
	assert.Equal(t, int64(5), repo.quantity(1))
	assert.Zero(t, repo.orderCount())
	assert.Empty(t, repo.drift())
}

func TestCancelOrderSerializationFailuresExhausted(t *testing.T) {
	repo := newConflictingRepo()
	svc, _, _ := newTestService(repo)
	order := seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 4})

	repo.failures = 10
	_, err := svc.CancelOrder(context.Background(), order.ID)
	assertSerializationFailure(t, err)
	assert.Equal(t, int64(1), repo.quantity(1))
	assert.Equal(t, 1, repo.orderCount())
	assert.Empty(t, repo.drift())
}

func TestUpdateOrderStatusRetriesSerializationFailure(t *testing.T) {
	repo := newConflictingRepo()
	svc, _, _ := newTestService(repo)
	order := seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 1})

	repo.failures = 1
	paid := 100.0
	updated, err := svc.UpdateOrderStatus(context.Background(), order.ID, UpdateStatusRequest{Status: StatusCompleted, PaidAmount: &paid})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, 100.0, updated.PaidAmount)
	assert.Len(t, repo.state.payments, 1)
}

func TestUpdateOrderStatusSerializationFailuresExhausted(t *testing.T) {
	repo := newConflictingRepo()
	svc, _, _ := newTestService(repo)
	order := seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 1})

	repo.failures = 10
	paid := 100.0
	_, err := svc.UpdateOrderStatus(context.Background(), order.ID, UpdateStatusRequest{Status: StatusCompleted, PaidAmount: &paid})
	assertSerializationFailure(t, err)
	assert.Equal(t, StatusPending, repo.state.orders[order.ID].Status)
	assert.Empty(t, repo.state.payments)
}

// repeatingNumbers replays a fixed list of order numbers.
type repeatingNumbers struct {
	nos []string
}

func (r *repeatingNumbers) Next(_ context.Context, _ time.Time) (string, error) {
	no := r.nos[0]
	r.nos = r.nos[1:]
	return no, nil
}

func TestCreateOrderReplacesTakenOrderNumber(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 100, 5, 0)
	repo.addCustomer(7, 0)
	svc, _, _ := newTestService(repo)
	svc.numbers = &repeatingNumbers{nos: []string{"ORD-20250310-000001", "ORD-20250310-000001", "ORD-20250310-000002"}}

	first := seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 1})
	second := seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 1})

	assert.Equal(t, "ORD-20250310-000001", first.OrderNo)
	assert.Equal(t, "ORD-20250310-000002", second.OrderNo)
	assert.Equal(t, 2, repo.orderCount())
	assert.Equal(t, int64(3), repo.quantity(1))
	assert.Empty(t, repo.drift())
}

func TestCreateOrderTakenNumbersExhausted(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 100, 5, 0)
	repo.addCustomer(7, 0)
	svc, _, _ := newTestService(repo)
	svc.numbers = &repeatingNumbers{nos: []string{"ORD-1", "ORD-1", "ORD-1", "ORD-1"}}

	seedOrder(t, svc, CreateLineReq{ProductID: 1, Quantity: 1})
	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		CustomerID: 7, Channel: ChannelInternal, Lines: []CreateLineReq{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrStockContention)
	require.ErrorIs(t, err, errOrderNumberTaken)
	assert.Equal(t, 1, repo.orderCount())
	assert.Equal(t, int64(4), repo.quantity(1))
}

func TestCreateOrderStampsIdempotencyKeyWithServiceClock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 100, 5, 0)
	repo.addCustomer(7, 0)
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		CustomerID: 7, Channel: ChannelInternal, IdempotencyKey: "req-42",
		Lines: []CreateLineReq{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	at, ok := repo.state.keys["orders|req-42"]
	require.True(t, ok)
	assert.True(t, fixedNow.Equal(at))
}

func TestCreateOrderProductWithoutInventoryRecordIsShort(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 100, 5, 0)
	repo.addUntrackedProduct(2, 50)
	repo.addCustomer(7, 0)
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		CustomerID: 7, Channel: ChannelInternal,
		Lines: []CreateLineReq{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 3}},
	})
	var short *InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.NotErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, []Shortage{{ProductID: 2, Requested: 3, Available: 0}}, short.Shortages)
	assert.Equal(t, int64(5), repo.quantity(1))
	assert.Zero(t, repo.orderCount())
}
