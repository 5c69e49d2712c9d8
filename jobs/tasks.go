package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep flips unpaid invoices past their due date to overdue.
	TaskOverdueSweep = "billing:invoices:overdue_sweep"
	// TaskQuoteExpiry expires open quotes past their validity date.
	TaskQuoteExpiry = "billing:quotes:expire"
)

// SweepPayload pins the reference time of a sweep. A zero RunAt means the
// time the task is handled.
type SweepPayload struct {
	RunAt *time.Time `json:"run_at,omitempty"`
}

// TaskNames lists every task the worker handles.
func TaskNames() []string {
	names := []string{TaskOverdueSweep, TaskQuoteExpiry}
	sort.Strings(names)
	return names
}

// NewSweepTask builds a task of the given type. Each task gets a unique ID so
// manual triggers never collide with scheduled runs.
func NewSweepTask(name string, runAt *time.Time) (*asynq.Task, error) {
	switch name {
	case TaskOverdueSweep, TaskQuoteExpiry:
	default:
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
	body, err := json.Marshal(SweepPayload{RunAt: runAt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body, asynq.Queue(QueueDefault), asynq.TaskID(uuid.NewString()), asynq.MaxRetry(3)), nil
}

// NewScheduledTask builds the payload-less task registered with the scheduler.
func NewScheduledTask(name string) *asynq.Task {
	return asynq.NewTask(name, []byte(`{}`), asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

func decodeSweep(t *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
