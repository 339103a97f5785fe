package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile re-syncs every postable source document into the ledger.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskGLIntegrity verifies posting groups and the trial balance.
	TaskGLIntegrity = "ledger:gl_integrity"
)

// ReconcilePayload describes a reconciliation request.
type ReconcilePayload struct {
	RequestID   string    `json:"request_id"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewReconcileTask constructs an Asynq task for ledger reconciliation.
func NewReconcileTask(requestedBy string) (*asynq.Task, error) {
	if requestedBy == "" {
		requestedBy = "scheduler"
	}
	body, err := json.Marshal(ReconcilePayload{
		RequestID:   uuid.NewString(),
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// IntegrityPayload selects the trial balance date; empty means today.
type IntegrityPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewIntegrityTask constructs an Asynq task for the GL integrity check.
func NewIntegrityTask(asOf time.Time) (*asynq.Task, error) {
	payload := IntegrityPayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}
