package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, pair := range m.GetLabel() {
		out[pair.GetName()] = pair.GetValue()
	}
	return out
}

func TestSessionMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSessionMetrics(reg)

	m.RecordEvent("phase_changed")
	m.RecordEvent("phase_changed")
	m.RecordWrite("addVoter", nil)
	m.RecordWrite("addVoter", errors.New("reverted"))
	m.RecordBoot("")
	m.RecordHandlerError("voted")
	m.RecordRebind()
	m.ObserveRead("owner", time.Now().Add(-time.Millisecond))

	families := gather(t, reg)

	events := families["votesync_events_total"].GetMetric()
	require.Len(t, events, 1)
	require.Equal(t, "phase_changed", labels(events[0])["kind"])
	require.Equal(t, 2.0, events[0].GetCounter().GetValue())

	results := map[string]float64{}
	for _, metric := range families["votesync_writes_total"].GetMetric() {
		results[labels(metric)["result"]] = metric.GetCounter().GetValue()
	}
	require.Equal(t, map[string]float64{"submitted": 1, "rejected": 1}, results)

	boot := families["votesync_boot_total"].GetMetric()
	require.Equal(t, "unknown", labels(boot[0])["result"])

	require.Equal(t, 1.0, families["votesync_rebinds_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, uint64(1), families["votesync_read_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestNilSessionMetricsAreSafe(t *testing.T) {
	var m *SessionMetrics
	m.RecordEvent("voted")
	m.RecordWrite("setVote", nil)
	m.RecordBoot("ready")
	m.RecordHandlerError("voted")
	m.RecordRebind()
	m.ObserveRead("owner", time.Now())
}
