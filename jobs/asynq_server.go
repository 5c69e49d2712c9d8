package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
)

// scheduledUniqueFor keeps replicas of the worker from enqueueing the same
// scheduled sweep twice.
const scheduledUniqueFor = 10 * time.Minute

// Job is a task handler registered with the worker.
type Job interface {
	Type() string
	Handle(ctx context.Context, t *asynq.Task) error
}

// Schedule runs Job on a cron expression. An empty Cron disables the entry.
type Schedule struct {
	Cron string
	Job  string
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Jobs        []Job
	Schedules   []Schedule
}

// Worker runs the asynq server and, when schedules exist, the cron scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
	types     []string
}

// NewWorker registers jobs and schedules. Duplicate job types, schedules for
// unregistered jobs and invalid cron expressions are rejected.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	mux := asynq.NewServeMux()
	registered := make(map[string]bool, len(cfg.Jobs))
	types := make([]string, 0, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		if job == nil {
			continue
		}
		name := job.Type()
		if registered[name] {
			return nil, fmt.Errorf("jobs: duplicate handler for %s", name)
		}
		registered[name] = true
		types = append(types, name)
		mux.HandleFunc(name, job.Handle)
	}

	var scheduler *asynq.Scheduler
	for _, entry := range cfg.Schedules {
		if entry.Cron == "" {
			logger.Info("schedule disabled", slog.String("job", entry.Job))
			continue
		}
		if !registered[entry.Job] {
			return nil, fmt.Errorf("jobs: schedule for unregistered job %s", entry.Job)
		}
		if scheduler == nil {
			scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		}
		if _, err := scheduler.Register(entry.Cron, NewScheduledTask(entry.Job), asynq.Unique(scheduledUniqueFor)); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s %q: %w", entry.Job, entry.Cron, err)
		}
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       map[string]int{QueueDefault: 1},
		ErrorHandler: taskErrorLogger(logger),
	})
	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger, types: types}, nil
}

func taskErrorLogger(logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Error("task failed",
			slog.String("task", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err))
	})
}

// Types lists the registered job types in registration order.
func (w *Worker) Types() []string {
	if w == nil {
		return nil
	}
	return append([]string(nil), w.types...)
}

// Run processes tasks until ctx is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client enqueues manual sweep runs.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSweep enqueues a one-off run of a sweep task.
func (c *Client) EnqueueSweep(ctx context.Context, name string, runAt *time.Time) (*asynq.TaskInfo, error) {
	task, err := NewSweepTask(name, runAt)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// QueueInspector is the part of asynq.Inspector used for health reporting.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueHealth summarises the billing queue.
type QueueHealth struct {
	Queue          string  `json:"queue"`
	Paused         bool    `json:"paused"`
	Pending        int     `json:"pending"`
	Active         int     `json:"active"`
	Scheduled      int     `json:"scheduled"`
	Retry          int     `json:"retry"`
	Archived       int     `json:"archived"`
	ProcessedToday int     `json:"processed_today"`
	FailedToday    int     `json:"failed_today"`
	LatencySeconds float64 `json:"latency_seconds"`
}

// ReadQueueHealth reads the default queue's counters.
func ReadQueueHealth(inspector QueueInspector) (QueueHealth, error) {
	if inspector == nil {
		return QueueHealth{}, errors.New("jobs: queue inspector not configured")
	}
	info, err := inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		return QueueHealth{}, err
	}
	health := QueueHealth{Queue: QueueDefault}
	if info != nil {
		health = QueueHealth{
			Queue:          info.Queue,
			Paused:         info.Paused,
			Pending:        info.Pending,
			Active:         info.Active,
			Scheduled:      info.Scheduled,
			Retry:          info.Retry,
			Archived:       info.Archived,
			ProcessedToday: info.Processed,
			FailedToday:    info.Failed,
			LatencySeconds: info.Latency.Seconds(),
		}
	}
	return health, nil
}

// Handler serves queue health over HTTP.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	health, err := ReadQueueHealth(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, httpx.ProblemDetail{
			Title:  "Job queue unavailable",
			Status: http.StatusServiceUnavailable,
			Code:   "QUEUE_UNAVAILABLE",
		})
		return
	}
	httpx.JSON(w, http.StatusOK, health)
}
