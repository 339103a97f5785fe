package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrIntegrity marks a failed general ledger integrity check.
var ErrIntegrity = errors.New("gl integrity check failed")

// GroupAuditor lists posting groups that do not balance.
type GroupAuditor interface {
	UnbalancedGroups(ctx context.Context) ([]accounting.GroupImbalance, error)
}

// TrialBalancer computes the trial balance.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
}

// IntegrityReport summarises one integrity check.
type IntegrityReport struct {
	AsOf       time.Time                   `json:"as_of"`
	Unbalanced []accounting.GroupImbalance `json:"unbalanced_groups"`
	Trial      reports.TrialBalance        `json:"trial_balance"`
}

// OK reports whether every group balances and the trial balance agrees.
func (r IntegrityReport) OK() bool {
	return len(r.Unbalanced) == 0 && r.Trial.Balanced()
}

// GLIntegrityJob checks that the postings log still satisfies double entry.
type GLIntegrityJob struct {
	Groups  GroupAuditor
	Reports TrialBalancer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGLIntegrityJob wires dependencies for the integrity handler.
func NewGLIntegrityJob(groups GroupAuditor, balances TrialBalancer, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Groups:  groups,
		Reports: balances,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskGLIntegrity tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Groups == nil || j.Reports == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := time.Parse(time.DateOnly, payload.AsOf)
		if err != nil {
			return fmt.Errorf("gl integrity: as_of: %v: %w", err, asynq.SkipRetry)
		}
		asOf = parsed
	}
	_, err := j.Run(ctx, asOf)
	return err
}

// Run performs the check as of asOf. The report is returned even when the
// check fails so callers can print it.
func (j *GLIntegrityJob) Run(ctx context.Context, asOf time.Time) (IntegrityReport, error) {
	tracker := j.metrics().Track(TaskGLIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("job", "gl_integrity"), slog.String("as_of", asOf.Format(time.DateOnly)))
	report := IntegrityReport{AsOf: asOf}

	unbalanced, err := j.Groups.UnbalancedGroups(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list unbalanced groups", slog.Any("error", err))
		return report, resultErr
	}
	report.Unbalanced = unbalanced
	j.metrics().SetUnbalanced(len(unbalanced))
	for _, g := range unbalanced {
		logger.Error("posting group out of balance",
			slog.String("group_id", g.GroupID),
			slog.Int("legs", g.Legs),
			slog.String("debit", g.Debit.String()),
			slog.String("credit", g.Credit.String()),
		)
	}

	report.Trial, err = j.Reports.TrialBalance(ctx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("trial balance", slog.Any("error", err))
		return report, resultErr
	}

	if !report.OK() {
		resultErr = fmt.Errorf("%w: %d unbalanced groups, trial balance difference %s",
			ErrIntegrity, len(unbalanced), report.Trial.Difference())
		logger.Error("gl integrity check failed", slog.Any("error", resultErr))
		return report, resultErr
	}
	logger.Info("gl integrity check passed",
		slog.String("total_debits", report.Trial.TotalDebits.String()),
		slog.String("total_credits", report.Trial.TotalCredits.String()),
	)
	return report, resultErr
}

func (j *GLIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
