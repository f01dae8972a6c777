package performance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor accumulates one Snapshot per navigation and derives vitals
// reports. Captures and reads are safe to interleave from multiple
// goroutines.
type Monitor struct {
	mu        sync.RWMutex
	snapshots []Snapshot
	start     time.Time
	logger    *zap.Logger
}

// NewMonitor builds an empty Monitor. A nil logger is replaced with a
// no-op logger.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{start: time.Now(), logger: logger}
}

// Capture pulls one snapshot from the sampler and appends it. A sampler
// error is logged and converted into an all-absent snapshot carrying only
// the capture timestamp; it never aborts the session.
func (m *Monitor) Capture(ctx context.Context, sampler Sampler) Snapshot {
	snap, err := sampler.CollectMetrics(ctx)
	if err != nil {
		m.logger.Warn("performance snapshot failed", zap.Error(err))
		snap = Snapshot{}
	}
	snap.Timestamp = time.Now()

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snap)
	m.mu.Unlock()

	return snap
}

// Latest returns the most recent snapshot, false when none was captured.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return Snapshot{}, false
	}
	return m.snapshots[len(m.snapshots)-1], true
}

// Snapshots returns a copy of every captured snapshot in capture order.
func (m *Monitor) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// Count reports how many snapshots were captured.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// LatestVitals grades the most recent snapshot. With no snapshots it
// returns a neutral report over an empty snapshot.
func (m *Monitor) LatestVitals() VitalsReport {
	snap, _ := m.Latest()
	return GradeSnapshot(snap)
}

// ExportSummary is the reporting view: capture count, every snapshot, and
// the vitals report of the latest one.
type ExportSummary struct {
	MonitoringDuration float64      `json:"monitoring_duration"`
	SnapshotCount      int          `json:"snapshot_count"`
	Snapshots          []Snapshot   `json:"snapshots"`
	LatestVitals       VitalsReport `json:"latest_vitals"`
}

// Export assembles the reporting view.
func (m *Monitor) Export() ExportSummary {
	m.mu.RLock()
	snapshots := make([]Snapshot, len(m.snapshots))
	copy(snapshots, m.snapshots)
	m.mu.RUnlock()

	summary := ExportSummary{
		MonitoringDuration: time.Since(m.start).Seconds(),
		SnapshotCount:      len(snapshots),
		Snapshots:          snapshots,
	}
	if len(snapshots) > 0 {
		summary.LatestVitals = GradeSnapshot(snapshots[len(snapshots)-1])
	} else {
		summary.LatestVitals = GradeSnapshot(Snapshot{})
	}
	return summary
}
