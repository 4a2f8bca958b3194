package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/odyssey-orders/internal/jobs"
	"github.com/odyssey-erp/odyssey-orders/internal/shared"
	"github.com/odyssey-erp/odyssey-orders/internal/statements"
)

const statementConcurrency = 4

// StatementService describes what the batch needs from statements.
type StatementService interface {
	Generate(ctx context.Context, customerID int64, period shared.Period) (statements.Statement, error)
	ActiveCustomers(ctx context.Context, period shared.Period) ([]int64, error)
}

// StatementBatchResult summarises one run.
type StatementBatchResult struct {
	Period    shared.Period
	Generated int
	Skipped   int
	Failed    int
}

// StatementGenerateJob builds monthly statements for one or all customers.
type StatementGenerateJob struct {
	Service StatementService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStatementGenerateJob constructs the job handler.
func NewStatementGenerateJob(service StatementService, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatementGenerateJob {
	return &StatementGenerateJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskStatementsGenerate tasks.
func (j *StatementGenerateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("statements generate: handler not configured")
	}
	var payload StatementsGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	period := shared.PeriodOf(j.now()).Previous()
	if payload.Period != "" {
		p, err := shared.ParsePeriod(payload.Period)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		period = p
	}

	tracker := j.metrics().Track(TaskStatementsGenerate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	_, resultErr = j.Run(ctx, period, payload.CustomerID)
	return resultErr
}

// Run generates statements for period. Existing statements are skipped so a
// re-run after a partial failure only fills the gaps.
func (j *StatementGenerateJob) Run(ctx context.Context, period shared.Period, customerID int64) (StatementBatchResult, error) {
	logger := j.logger().With(slog.String("period", period.String()))
	res := StatementBatchResult{Period: period}

	customers := []int64{customerID}
	if customerID == 0 {
		ids, err := j.Service.ActiveCustomers(ctx, period)
		if err != nil {
			logger.Error("list active customers", slog.Any("error", err))
			return res, err
		}
		customers = ids
	}
	logger.Info("generating statements", slog.Int("customers", len(customers)))

	var generated, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(statementConcurrency)
	for _, id := range customers {
		id := id
		g.Go(func() error {
			_, err := j.Service.Generate(ctx, id, period)
			switch {
			case err == nil:
				generated.Add(1)
			case statements.IsSkippable(err):
				skipped.Add(1)
			default:
				failed.Add(1)
				logger.Error("statement failed", slog.Int64("customer_id", id), slog.Any("error", err))
				return fmt.Errorf("customer %d: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()

	res.Generated = int(generated.Load())
	res.Skipped = int(skipped.Load())
	res.Failed = int(failed.Load())
	j.metrics().AddStatements("generated", res.Generated)
	j.metrics().AddStatements("skipped", res.Skipped)
	j.metrics().AddStatements("failed", res.Failed)
	logger.Info("completed statements",
		slog.Int("generated", res.Generated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	if err != nil {
		return res, fmt.Errorf("statements generate: %d failed: %w", res.Failed, err)
	}
	return res, nil
}

func (j *StatementGenerateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatementsGenerate))
	}
	return slog.Default().With(slog.String("job", TaskStatementsGenerate))
}

func (j *StatementGenerateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StatementGenerateJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
