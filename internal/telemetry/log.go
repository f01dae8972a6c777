package telemetry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetention is how many events the log keeps before discarding the
// oldest. Timeline consumers only ever read the tail, so retention is a
// memory bound rather than a correctness guarantee.
const DefaultRetention = 1000

// Log is the append-only event log of one session. Appending never fails:
// events with an empty type are recorded as EventUnknown instead of being
// rejected. All methods are safe for concurrent use, and reads may run
// concurrently with ongoing appends.
type Log struct {
	mu        sync.RWMutex
	events    []Event
	total     int
	retention int
	logger    *zap.Logger
}

// NewLog returns a Log retaining the most recent retention events. A
// retention of zero or less selects DefaultRetention. A nil logger is
// replaced with a no-op logger.
func NewLog(retention int, logger *zap.Logger) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{retention: retention, logger: logger}
}

// Record appends an event with SeverityInfo.
func (l *Log) Record(t EventType, source string, data map[string]any) {
	l.RecordSeverity(t, source, SeverityInfo, data)
}

// RecordSeverity appends an event with an explicit severity. The timestamp
// is taken at the moment of the call.
func (l *Log) RecordSeverity(t EventType, source string, severity Severity, data map[string]any) {
	if t == "" {
		t = EventUnknown
	}
	if severity == "" {
		severity = SeverityInfo
	}
	ev := Event{
		Timestamp: time.Now(),
		Type:      t,
		Source:    source,
		Severity:  severity,
		Data:      data,
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	l.total++
	if len(l.events) > l.retention {
		overflow := len(l.events) - l.retention
		l.events = append(l.events[:0], l.events[overflow:]...)
	}
	l.mu.Unlock()

	l.logger.Debug("event recorded",
		zap.String("type", string(t)),
		zap.String("source", source),
		zap.String("severity", string(severity)))
}

// Total reports how many events were ever recorded, including ones no
// longer retained.
func (l *Log) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Len reports how many events are currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Recent returns up to n of the most recent events in arrival order.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || len(l.events) == 0 {
		return nil
	}
	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Snapshot returns a copy of every retained event in arrival order.
func (l *Log) Snapshot() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// CountByType tallies retained events per type.
func (l *Log) CountByType() map[EventType]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[EventType]int, 8)
	for _, ev := range l.events {
		counts[ev.Type]++
	}
	return counts
}
