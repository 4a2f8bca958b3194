package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-orders/internal/jobs"
)

// Reconciler folds the inventory ledger and reports drift.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Drift, error)
}

// LedgerReconcileJob checks that cached stock still matches the ledger.
type LedgerReconcileJob struct {
	Inventory Reconciler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerReconcileJob constructs the job handler.
func NewLedgerReconcileJob(inv Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Inventory: inv, Logger: logger, Metrics: metrics}
}

// Handle processes TaskInventoryReconcile tasks. Drift is reported through
// logs and gauges; it does not fail the task.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	var payload InventoryReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskInventoryReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger()
	drifts, err := j.Inventory.Reconcile(ctx)
	if err != nil {
		resultErr = err
		logger.Error("reconcile failed", slog.Any("error", err))
		return resultErr
	}

	var units int64
	for _, d := range drifts {
		diff := d.Difference
		if diff < 0 {
			diff = -diff
		}
		units += diff
		logger.Warn("inventory drifted from ledger",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("cached", d.Cached),
			slog.Int64("ledger", d.Ledger),
		)
	}
	j.metrics().SetLedgerDrift(len(drifts), units)
	logger.Info("completed ledger reconcile",
		slog.Int("drifted_products", len(drifts)),
		slog.Int64("drifted_units", units),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryReconcile))
	}
	return slog.Default().With(slog.String("job", TaskInventoryReconcile))
}

func (j *LedgerReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
