package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overdue = "billing:invoices:overdue_sweep"

func family(t *testing.T, reg *prometheus.Registry, name string) map[string]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]*dto.Metric{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			key := ""
			for _, label := range metric.GetLabel() {
				key += label.GetName() + "=" + label.GetValue() + ";"
			}
			out[key] = metric
		}
	}
	return out
}

func TestRunRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := time.Date(2026, 10, 18, 0, 15, 0, 0, time.UTC)
	m := register(reg, func() time.Time { return clock })

	run := m.Track(overdue)
	clock = clock.Add(2 * time.Second)
	require.NoError(t, run.End(nil))

	boom := errors.New("postgres down")
	assert.ErrorIs(t, m.Track(overdue).End(boom), boom)

	runs := family(t, reg, "odyssey_jobs_total")
	assert.Equal(t, 1.0, runs["job="+overdue+";status=success;"].GetCounter().GetValue())
	assert.Equal(t, 1.0, runs["job="+overdue+";status=failure;"].GetCounter().GetValue())

	last := family(t, reg, "odyssey_job_last_success_timestamp_seconds")
	assert.Equal(t, float64(clock.Unix()), last["job="+overdue+";"].GetGauge().GetValue())

	duration := family(t, reg, "odyssey_job_duration_seconds")
	assert.Equal(t, uint64(2), duration["job="+overdue+";"].GetHistogram().GetSampleCount())
	assert.InDelta(t, 2.0, duration["job="+overdue+";"].GetHistogram().GetSampleSum(), 0.001)
}

func TestFailedRunKeepsLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := register(reg, time.Now)

	_ = m.Track(overdue).End(errors.New("boom"))

	assert.Empty(t, family(t, reg, "odyssey_job_last_success_timestamp_seconds"))
	assert.Equal(t, 1.0, family(t, reg, "odyssey_jobs_failures_total")["job="+overdue+";"].GetCounter().GetValue())
}

func TestAddAffectedIgnoresEmptyRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddAffected(overdue, 3)
	m.AddAffected(overdue, 0)
	m.AddAffected(overdue, -1)

	assert.Equal(t, 3.0, family(t, reg, "odyssey_job_affected_documents_total")["job="+overdue+";"].GetCounter().GetValue())
}

func TestNilMetricsRunPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	assert.NotPanics(t, func() { m.AddAffected("x", 1) })
}
