package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
)

type fakeStats map[string]int64

func (f fakeStats) GetStat(_ context.Context, stat string) (int64, error) {
	return f[stat], nil
}

type fakeQueue struct {
	depth int
	dlq   int
}

func (f *fakeQueue) GetQueueDepth() (int, error) { return f.depth, nil }

func (f *fakeQueue) GetDLQDepth() (int, error) { return f.dlq, nil }

func newTestMonitor(t *testing.T, stats fakeStats, q *fakeQueue) *Monitor {
	t.Helper()
	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)
	m := NewMonitor(stats, q, log)
	require.NoError(t, m.updateMetrics(context.Background()))
	return m
}

func TestMonitor_Snapshot(t *testing.T) {
	m := newTestMonitor(t, fakeStats{
		"ads_completed":   120,
		"ads_rejected":    4,
		"ads_expired":     8,
		"points_credited": 600,
	}, &fakeQueue{depth: 3})

	got := m.GetMetrics()
	assert.Equal(t, 3, got.QueueDepth)
	assert.Equal(t, 0, got.DLQDepth)
	assert.Equal(t, int64(120), got.AdsCompleted)
	assert.Equal(t, int64(600), got.PointsCredited)
	assert.False(t, got.LastUpdated.IsZero())
}

func TestMonitor_Health(t *testing.T) {
	healthy := newTestMonitor(t, fakeStats{"ads_completed": 100}, &fakeQueue{})
	assert.Equal(t, "healthy", healthy.GetSystemHealth())
	assert.Empty(t, healthy.GetAlerts())

	deadLettered := newTestMonitor(t, fakeStats{}, &fakeQueue{dlq: 5})
	assert.Equal(t, "warning", deadLettered.GetSystemHealth())
	assert.NotEmpty(t, deadLettered.GetAlerts())

	critical := newTestMonitor(t, fakeStats{}, &fakeQueue{dlq: 500})
	assert.Equal(t, "critical", critical.GetSystemHealth())

	rejecting := newTestMonitor(t, fakeStats{
		"ads_completed": 10,
		"ads_rejected":  10,
	}, &fakeQueue{})
	assert.Equal(t, "warning", rejecting.GetSystemHealth())
}
