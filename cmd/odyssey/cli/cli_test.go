package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
	"github.com/odyssey-erp/odyssey-orders/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubQueue struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubQueue) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

type stubReconciler struct {
	drifts []inventory.Drift
	err    error
}

func (s stubReconciler) Reconcile(context.Context) ([]inventory.Drift, error) { return s.drifts, s.err }

func deps(enq *stubEnqueuer, q stubQueue, rec stubReconciler, stdout, stderr *bytes.Buffer) Deps {
	return Deps{
		Jobs: func() (*JobsCLI, error) { return &JobsCLI{client: enq, inspector: q}, nil },
		Reconciler: func(context.Context) (Reconciler, func(), error) {
			return rec, func() {}, nil
		},
		Stdout: stdout,
		Stderr: stderr,
	}
}

func TestTriggerStatementsPayload(t *testing.T) {
	enq := &stubEnqueuer{}
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(),
		[]string{"jobs", "trigger", "-customer", "7", "-period", "2025-02", jobs.TaskStatementsGenerate},
		deps(enq, stubQueue{}, stubReconciler{}, &stdout, &stderr))
	require.Zero(t, code, stderr.String())
	require.Len(t, enq.tasks, 1)

	var payload jobs.StatementsGeneratePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, int64(7), payload.CustomerID)
	require.Equal(t, "2025-02", payload.Period)
	require.Contains(t, stdout.String(), "enqueued statements:generate as task-1")
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	enq := &stubEnqueuer{}
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"jobs", "trigger", "reports:build"},
		deps(enq, stubQueue{}, stubReconciler{}, &stdout, &stderr))
	require.Equal(t, 1, code)
	require.Empty(t, enq.tasks)
	require.Contains(t, stderr.String(), "unsupported job")
}

func TestInspectQueue(t *testing.T) {
	var stdout, stderr bytes.Buffer
	q := stubQueue{info: &asynq.QueueInfo{Pending: 3, Active: 1, Retry: 2}}
	code := Run(context.Background(), []string{"jobs", "inspect"},
		deps(&stubEnqueuer{}, q, stubReconciler{}, &stdout, &stderr))
	require.Zero(t, code)

	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Active: 1, Retry: 2}, stats)

	stdout.Reset()
	code = Run(context.Background(), []string{"jobs", "inspect"},
		deps(&stubEnqueuer{}, stubQueue{err: errors.New("redis down")}, stubReconciler{}, &stdout, &stderr))
	require.Equal(t, 1, code)
}

func TestReconcileCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := ReconcileCommand(context.Background(), stubReconciler{}, ReconcileOptions{JSONOutput: true, Stdout: &stdout, Stderr: &stderr})
	require.Zero(t, code)
	var summary ReconcileSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Empty(t, summary.Drifts)

	stdout.Reset()
	drifted := stubReconciler{drifts: []inventory.Drift{{ProductID: 4, Cached: 9, Ledger: 6, Difference: 3}}}
	code = ReconcileCommand(context.Background(), drifted, ReconcileOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "product 4: cached 9, ledger 6 (+3)")

	code = ReconcileCommand(context.Background(), stubReconciler{err: errors.New("boom")}, ReconcileOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 1, code)
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, Run(context.Background(), []string{"bogus"}, deps(&stubEnqueuer{}, stubQueue{}, stubReconciler{}, &stdout, &stderr)))
	require.Contains(t, stderr.String(), "usage:")
}
