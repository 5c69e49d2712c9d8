package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

// InvoiceSweeper marks overdue invoices.
type InvoiceSweeper interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// QuoteSweeper expires stale quotes.
type QuoteSweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// SweepJob runs one status sweep per task.
type SweepJob struct {
	name    string
	run     func(ctx context.Context, now time.Time) (int, error)
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueSweepJob wires the invoice sweep handler.
func NewOverdueSweepJob(invoices InvoiceSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return newSweepJob(TaskOverdueSweep, invoices.MarkOverdue, logger, metrics)
}

// NewQuoteExpiryJob wires the quote expiry handler.
func NewQuoteExpiryJob(quotes QuoteSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return newSweepJob(TaskQuoteExpiry, quotes.ExpireStale, logger, metrics)
}

func newSweepJob(name string, run func(context.Context, time.Time) (int, error), logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		name:    name,
		run:     run,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Type reports the asynq task type the job handles.
func (j *SweepJob) Type() string { return j.name }

// Handle executes the sweep.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.run == nil {
		return errors.New("sweep: handler not configured")
	}
	payload, err := decodeSweep(t)
	if err != nil {
		return err
	}
	now := j.clock()
	if payload.RunAt != nil {
		now = payload.RunAt.UTC()
	}

	tracker := j.Metrics.Track(j.name)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("job", j.name), slog.Time("run_at", now))
	n, err := j.run(ctx, now)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAffected(j.name, n)
	logger.Info("sweep finished", slog.Int("affected", n))
	return nil
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
