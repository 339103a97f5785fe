package integration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Locker serialises work on one document across workers.
type Locker interface {
	Acquire(ctx context.Context, kind, id string) (func(), error)
}

// Summary reports the outcome of a reconciliation run.
type Summary struct {
	RunID      string        `json:"run_id"`
	Scanned    int           `json:"scanned"`
	Applied    int           `json:"applied"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Reconciler re-scans postable documents and syncs each one. Re-running it is
// safe: already posted documents are skipped.
type Reconciler struct {
	hooks     *Hooks
	documents DocumentReader
	locker    Locker
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler constructs a reconciler. locker may be nil.
func NewReconciler(hooks *Hooks, documents DocumentReader, locker Locker, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{hooks: hooks, documents: documents, locker: locker, logger: logger, now: time.Now}
}

type scan struct {
	kind accounting.SourceType
	list func(context.Context) ([]string, error)
}

// Run syncs every postable document. A failing document is logged and
// counted; the run continues. Listing failures and cancellation abort the run.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), StartedAt: r.now()}
	logger := r.logger.With(slog.String("run_id", summary.RunID))
	scans := []scan{
		{kind: accounting.SourceSalesOrder, list: r.documents.PaidSalesOrders},
		{kind: accounting.SourcePurchaseOrder, list: r.documents.ReceivedPurchaseOrders},
		{kind: accounting.SourcePurchasePayment, list: r.documents.PaidPurchaseOrders},
	}
	finish := func(err error) (Summary, error) {
		summary.FinishedAt = r.now()
		summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
		logger.Info("ledger reconcile finished",
			slog.Int("scanned", summary.Scanned),
			slog.Int("applied", summary.Applied),
			slog.Int("skipped", summary.Skipped),
			slog.Int("failed", summary.Failed),
			slog.Any("error", err))
		return summary, err
	}
	for _, s := range scans {
		ids, err := s.list(ctx)
		if err != nil {
			return finish(err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}
			summary.Scanned++
			applied, err := r.syncOne(ctx, s.kind, id)
			switch {
			case errors.Is(err, internalShared.ErrLockHeld):
				summary.Skipped++
			case err != nil:
				summary.Failed++
				logger.Warn("document sync failed",
					slog.String("source_type", string(s.kind)),
					slog.String("source_id", id),
					slog.Any("error", err))
			case applied:
				summary.Applied++
			default:
				summary.Skipped++
			}
		}
	}
	return finish(nil)
}

func (r *Reconciler) syncOne(ctx context.Context, kind accounting.SourceType, id string) (bool, error) {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, string(kind), id)
		if err != nil {
			return false, err
		}
		defer release()
	}
	return r.hooks.Sync(ctx, kind, id)
}
