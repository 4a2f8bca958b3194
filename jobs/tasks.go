package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-orders/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatementsGenerate rolls up monthly statements.
	TaskStatementsGenerate = "statements:generate"
	// TaskInventoryReconcile folds the ledger and compares it to cached stock.
	TaskInventoryReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StatementsGeneratePayload selects which statements to build. A zero
// CustomerID means every customer with activity; an empty Period means the
// month before the run.
type StatementsGeneratePayload struct {
	CustomerID int64  `json:"customer_id,omitempty"`
	Period     string `json:"period,omitempty"`
}

// NewStatementsGenerateTask constructs an Asynq task for statement generation.
func NewStatementsGenerateTask(customerID int64, period string) (*asynq.Task, error) {
	body, err := json.Marshal(StatementsGeneratePayload{CustomerID: customerID, Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatementsGenerate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// InventoryReconcilePayload carries scheduling metadata.
type InventoryReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInventoryReconcileTask constructs an Asynq task for ledger reconciliation.
func NewInventoryReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(InventoryReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload configures retention.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(olderThanHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThanHours: olderThanHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
