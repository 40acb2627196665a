package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
)

// Metrics is a point-in-time snapshot of reward-pipeline health: bus
// backlog plus the aggregate outcome counters the worker maintains.
type Metrics struct {
	QueueDepth      int       `json:"queue_depth"`
	DLQDepth        int       `json:"dlq_depth"`
	AdsCompleted    int64     `json:"ads_completed"`
	AdsRejected     int64     `json:"ads_rejected"`
	AdsExpired      int64     `json:"ads_expired"`
	PointsCredited  int64     `json:"points_credited"`
	LastUpdated     time.Time `json:"last_updated"`
}

// StatsSource reads the aggregate counters (Redis-backed).
type StatsSource interface {
	GetStat(ctx context.Context, stat string) (int64, error)
}

// QueueProvider reads event-bus depths.
type QueueProvider interface {
	GetQueueDepth() (int, error)
	GetDLQDepth() (int, error)
}

// Monitor periodically snapshots pipeline health for the admin API.
type Monitor struct {
	metrics *Metrics
	mu      sync.RWMutex
	stats   StatsSource
	queue   QueueProvider
	log     *logging.Logger
}

// NewMonitor creates a new monitoring service
func NewMonitor(stats StatsSource, queue QueueProvider, log *logging.Logger) *Monitor {
	return &Monitor{
		metrics: &Metrics{LastUpdated: time.Now()},
		stats:   stats,
		queue:   queue,
		log:     log,
	}
}

// Start begins the collection loop
func (m *Monitor) Start(ctx context.Context) {
	go m.collectMetrics(ctx)
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.updateMetrics(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to update pipeline metrics")
			}
		}
	}
}

func (m *Monitor) updateMetrics(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueDepth, err := m.queue.GetQueueDepth()
	if err != nil {
		return fmt.Errorf("failed to get queue depth: %w", err)
	}
	m.metrics.QueueDepth = queueDepth

	dlqDepth, err := m.queue.GetDLQDepth()
	if err != nil {
		return fmt.Errorf("failed to get DLQ depth: %w", err)
	}
	m.metrics.DLQDepth = dlqDepth

	counters := map[string]*int64{
		"ads_completed":   &m.metrics.AdsCompleted,
		"ads_rejected":    &m.metrics.AdsRejected,
		"ads_expired":     &m.metrics.AdsExpired,
		"points_credited": &m.metrics.PointsCredited,
	}
	for stat, dst := range counters {
		v, err := m.stats.GetStat(ctx, stat)
		if err != nil {
			return fmt.Errorf("failed to read stat %s: %w", stat, err)
		}
		*dst = v
	}

	m.metrics.LastUpdated = time.Now()
	return nil
}

// GetMetrics returns the current snapshot
func (m *Monitor) GetMetrics() *Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := *m.metrics
	return &metrics
}

// GetSystemHealth condenses the snapshot into one status string. Any
// dead-lettered event means leaderboard aggregates are falling behind
// the ledger.
func (m *Monitor) GetSystemHealth() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.metrics.DLQDepth > 100 {
		return "critical"
	}
	if m.metrics.QueueDepth > 1000 || m.metrics.DLQDepth > 0 {
		return "warning"
	}

	total := m.metrics.AdsCompleted + m.metrics.AdsRejected
	if total > 0 {
		rejectRate := float64(m.metrics.AdsRejected) / float64(total)
		if rejectRate > 0.3 {
			return "warning"
		}
	}

	return "healthy"
}

// GetAlerts returns current system alerts
func (m *Monitor) GetAlerts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var alerts []string

	if m.metrics.DLQDepth > 0 {
		alerts = append(alerts, fmt.Sprintf("Dead-lettered reward events: %d", m.metrics.DLQDepth))
	}

	if m.metrics.QueueDepth > 1000 {
		alerts = append(alerts, fmt.Sprintf("High event backlog: %d pending", m.metrics.QueueDepth))
	}

	total := m.metrics.AdsCompleted + m.metrics.AdsRejected
	if total > 0 {
		rejectRate := float64(m.metrics.AdsRejected) / float64(total)
		if rejectRate > 0.3 {
			alerts = append(alerts, fmt.Sprintf("High rejection rate: %.1f%%", rejectRate*100))
		}
	}

	return alerts
}
