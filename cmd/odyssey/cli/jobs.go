package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/jobs"
)

// JobsCLI wraps manual management helpers for the billing sweeps.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the queue's Redis.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// ValidateJob reports whether name is a registered sweep.
func ValidateJob(name string) error {
	if !slices.Contains(jobs.TaskNames(), name) {
		return fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	return nil
}

// Trigger enqueues a sweep by name. A nil runAt sweeps as of now.
func (c *JobsCLI) Trigger(ctx context.Context, name string, runAt *time.Time) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if err := ValidateJob(name); err != nil {
		return nil, err
	}
	return c.client.EnqueueSweep(ctx, name, runAt)
}

// InspectQueue reports the default queue's counters.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueHealth{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.ReadQueueHealth(c.inspector)
}
