package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (integration.Summary, error)
}

// LedgerReconcileJob syncs postable documents that have not reached the ledger.
type LedgerReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewLedgerReconcileJob wires dependencies for the reconcile handler.
func NewLedgerReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerReconcile tasks. Per-document failures are
// counted, not returned, so a retry does not rescan healthy documents.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("request_id", payload.RequestID),
		slog.String("requested_by", payload.RequestedBy),
	)
	summary, err := j.Reconciler.Run(ctx)
	j.metrics().AddDocuments("applied", summary.Applied)
	j.metrics().AddDocuments("skipped", summary.Skipped)
	j.metrics().AddDocuments("failed", summary.Failed)
	if err != nil {
		resultErr = err
		logger.Error("ledger reconcile aborted", slog.String("run_id", summary.RunID), slog.Any("error", err))
		return resultErr
	}
	logger.Info("ledger reconcile completed",
		slog.String("run_id", summary.RunID),
		slog.Int("applied", summary.Applied),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration),
	)
	return resultErr
}

func (j *LedgerReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LedgerReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
