package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

type fakeSweeper struct {
	calls []time.Time
	n     int
	err   error
}

func (f *fakeSweeper) MarkOverdue(_ context.Context, now time.Time) (int, error) {
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func (f *fakeSweeper) ExpireStale(_ context.Context, now time.Time) (int, error) {
	f.calls = append(f.calls, now)
	return f.n, f.err
}

var fixedNow = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func TestOverdueSweepUsesClock(t *testing.T) {
	sweeper := &fakeSweeper{n: 4}
	job := NewOverdueSweepJob(sweeper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return fixedNow }

	require.NoError(t, job.Handle(context.Background(), NewScheduledTask(TaskOverdueSweep)))

	require.Len(t, sweeper.calls, 1)
	assert.Equal(t, fixedNow, sweeper.calls[0])
	assert.Equal(t, TaskOverdueSweep, job.Type())
}

func TestQuoteExpiryHonoursRunAt(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := NewQuoteExpiryJob(sweeper, nil, nil)
	runAt := time.Date(2024, 1, 31, 23, 0, 0, 0, time.FixedZone("CET", 3600))

	task, err := NewSweepTask(TaskQuoteExpiry, &runAt)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, sweeper.calls, 1)
	assert.True(t, runAt.Equal(sweeper.calls[0]))
	assert.Equal(t, time.UTC, sweeper.calls[0].Location())
}

func TestSweepFailurePropagates(t *testing.T) {
	boom := errors.New("db down")
	job := NewOverdueSweepJob(&fakeSweeper{err: boom}, nil, nil)

	err := job.Handle(context.Background(), NewScheduledTask(TaskOverdueSweep))

	assert.ErrorIs(t, err, boom)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := NewOverdueSweepJob(sweeper, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskOverdueSweep, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, sweeper.calls)
}

func TestNewSweepTaskRejectsUnknownName(t *testing.T) {
	_, err := NewSweepTask("billing:unknown", nil)
	assert.Error(t, err)

	task, err := NewSweepTask(TaskOverdueSweep, nil)
	require.NoError(t, err)
	var payload SweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Nil(t, payload.RunAt)
	assert.Equal(t, []string{TaskOverdueSweep, TaskQuoteExpiry}, TaskNames())
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestHealthReportsQueueCounters(t *testing.T) {
	rec := serveHealth(t, fakeInspector{info: &asynq.QueueInfo{
		Queue:     QueueDefault,
		Pending:   2,
		Retry:     1,
		Processed: 14,
		Failed:    1,
		Latency:   1500 * time.Millisecond,
	}})

	require.Equal(t, http.StatusOK, rec.Code)
	var got QueueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, QueueHealth{
		Queue:          QueueDefault,
		Pending:        2,
		Retry:          1,
		ProcessedToday: 14,
		FailedToday:    1,
		LatencySeconds: 1.5,
	}, got)
}

func TestHealthUnavailable(t *testing.T) {
	rec := serveHealth(t, fakeInspector{err: errors.New("redis: connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "QUEUE_UNAVAILABLE")
	assert.NotContains(t, rec.Body.String(), "connection refused")

	rec = serveHealth(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func testRedisOpts(t *testing.T) asynq.RedisClientOpt {
	t.Helper()
	return asynq.RedisClientOpt{Addr: miniredis.RunT(t).Addr()}
}

func TestNewWorkerRegistersSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	w, err := NewWorker(WorkerConfig{
		RedisOpts: testRedisOpts(t),
		Jobs:      []Job{NewOverdueSweepJob(sweeper, nil, nil), NewQuoteExpiryJob(sweeper, nil, nil)},
		Schedules: []Schedule{
			{Cron: "15 0 * * *", Job: TaskOverdueSweep},
			{Cron: "", Job: TaskQuoteExpiry},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{TaskOverdueSweep, TaskQuoteExpiry}, w.Types())
}

func TestNewWorkerRejectsBadWiring(t *testing.T) {
	sweeper := &fakeSweeper{}
	overdue := NewOverdueSweepJob(sweeper, nil, nil)

	tests := []struct {
		name string
		cfg  WorkerConfig
		want string
	}{
		{
			name: "duplicate job",
			cfg:  WorkerConfig{Jobs: []Job{overdue, NewOverdueSweepJob(sweeper, nil, nil)}},
			want: "duplicate handler",
		},
		{
			name: "schedule without job",
			cfg:  WorkerConfig{Jobs: []Job{overdue}, Schedules: []Schedule{{Cron: "0 1 * * *", Job: TaskQuoteExpiry}}},
			want: "unregistered job",
		},
		{
			name: "invalid cron",
			cfg:  WorkerConfig{Jobs: []Job{overdue}, Schedules: []Schedule{{Cron: "every night", Job: TaskOverdueSweep}}},
			want: "every night",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.RedisOpts = testRedisOpts(t)
			_, err := NewWorker(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNilWorkerAndClient(t *testing.T) {
	var w *Worker
	assert.Error(t, w.Run(context.Background()))
	assert.Nil(t, w.Types())

	var c *Client
	assert.NoError(t, c.Close())
}
