package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup deletes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskBillAging recomputes the outstanding vendor bill buckets.
	TaskBillAging = "reports:bill-aging"
)

// DefaultIdempotencyRetention is how long a client key stays replayable.
const DefaultIdempotencyRetention = 24 * time.Hour

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the configured window or the default.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return DefaultIdempotencyRetention
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// BillAgingPayload is empty today; the report always runs as of the worker clock.
type BillAgingPayload struct{}

// NewBillAgingTask builds a bill aging task.
func NewBillAgingTask() (*asynq.Task, error) {
	body, err := json.Marshal(BillAgingPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillAging, body, asynq.Queue(QueueDefault)), nil
}
