// Package session ties one telemetry log and the three monitors together
// under a single id, and routes raw browser signals to the right monitor
// while mirroring each into the event log.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webscope/internal/console"
	"webscope/internal/network"
	"webscope/internal/performance"
	"webscope/internal/telemetry"
)

// recentEventsLimit bounds the event tail carried by an Export.
const recentEventsLimit = 50

// Options configures a new Session.
type Options struct {
	// EventRetention bounds the telemetry log; zero selects the default.
	EventRetention int
	// ConsoleRules are appended after the default classification table,
	// so they win categorization on overlap.
	ConsoleRules []console.Rule
	// Logger receives diagnostics. Nil selects a no-op logger.
	Logger *zap.Logger
}

// Session owns one telemetry log, one console monitor, one network monitor
// and one performance monitor. Sessions share nothing; any number of them
// can run side by side. Ingestion may arrive from multiple goroutines and
// runs concurrently with reads.
type Session struct {
	id        string
	startedAt time.Time

	mu     sync.RWMutex
	url    string
	active bool

	events  *telemetry.Log
	console *console.Monitor
	network *network.Monitor
	perf    *performance.Monitor

	logger *zap.Logger
}

// New builds an active session monitoring the given URL.
func New(url string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rules := console.DefaultRules()
	rules = append(rules, opts.ConsoleRules...)

	return &Session{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		url:       url,
		active:    true,
		events:    telemetry.NewLog(opts.EventRetention, logger),
		console:   console.NewMonitor(rules, logger),
		network:   network.NewMonitor(logger),
		perf:      performance.NewMonitor(logger),
		logger:    logger,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// StartedAt returns the session start time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// URL returns the most recently navigated URL.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Active reports whether the session is still collecting.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Events exposes the telemetry log.
func (s *Session) Events() *telemetry.Log { return s.events }

// Console exposes the console monitor.
func (s *Session) Console() *console.Monitor { return s.console }

// Network exposes the network monitor.
func (s *Session) Network() *network.Monitor { return s.network }

// Performance exposes the performance monitor.
func (s *Session) Performance() *performance.Monitor { return s.perf }

// RecordConsole classifies one console message and mirrors it into the
// event log with a severity derived from the reported level.
func (s *Session) RecordConsole(in console.MessageInput) {
	s.console.AddMessage(in)
	s.events.RecordSeverity(telemetry.EventConsole, "console", consoleSeverity(in.Level), map[string]any{
		"level":    string(in.Level),
		"text":     in.Text,
		"location": in.Location,
	})
}

// RecordPageError routes an uncaught page exception into the console
// classifier as an error-level message and logs an error event.
func (s *Session) RecordPageError(message, stack string) {
	s.console.AddMessage(console.MessageInput{
		Level:      console.LevelError,
		Text:       message,
		StackTrace: stack,
	})
	s.events.RecordSeverity(telemetry.EventError, "error", telemetry.SeverityError, map[string]any{
		"type":    "javascript",
		"message": message,
		"stack":   stack,
	})
}

// RecordRequest registers a request and returns its correlation id.
func (s *Session) RecordRequest(in network.RequestInput) string {
	id := s.network.AddRequest(in)
	s.events.Record(telemetry.EventNetwork, "network", map[string]any{
		"type":          "request",
		"url":           in.URL,
		"method":        in.Method,
		"resource_type": in.ResourceType,
	})
	return id
}

// RecordResponse completes the pending request with the given id.
func (s *Session) RecordResponse(id string, in network.ResponseInput) {
	s.network.AddResponse(id, in)
	s.events.Record(telemetry.EventNetwork, "network", map[string]any{
		"type":       "response",
		"request_id": id,
		"status":     in.Status,
	})
}

// RecordFailure fails the pending request with the given id.
func (s *Session) RecordFailure(id, errText, blockedReason string) {
	s.network.AddFailure(id, errText, blockedReason)
	s.events.RecordSeverity(telemetry.EventNetwork, "network", telemetry.SeverityError, map[string]any{
		"type":       "request_failed",
		"request_id": id,
		"error":      errText,
	})
}

// CapturePerformance pulls one snapshot through the sampler and logs a
// performance event carrying the headline figures.
func (s *Session) CapturePerformance(ctx context.Context, sampler performance.Sampler) performance.Snapshot {
	snap := s.perf.Capture(ctx, sampler)
	s.events.Record(telemetry.EventPerformance, "performance", map[string]any{
		"page_load_time":           snap.PageLoadTime,
		"first_contentful_paint":   snap.FirstContentfulPaint,
		"largest_contentful_paint": snap.LargestContentfulPaint,
		"cumulative_layout_shift":  snap.CumulativeLayoutShift,
		"resource_count":           snap.ResourceCount,
	})
	return snap
}

// RecordNavigation logs a navigation event and updates the session URL.
func (s *Session) RecordNavigation(url string) {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	s.events.Record(telemetry.EventNavigation, "navigation", map[string]any{
		"url": url,
	})
}

// RecordInteraction logs a user interaction such as a click or an input.
func (s *Session) RecordInteraction(action string, detail map[string]any) {
	data := map[string]any{"action": action}
	for k, v := range detail {
		data[k] = v
	}
	s.events.Record(telemetry.EventInteraction, "interaction", data)
}

// Summary is the point-in-time rollup of one session.
type Summary struct {
	SessionID        string                `json:"session_id"`
	URL              string                `json:"url,omitempty"`
	StartedAt        time.Time             `json:"started_at"`
	SessionDuration  float64               `json:"session_duration"`
	TotalEvents      int                   `json:"total_events"`
	Console          console.Stats         `json:"console"`
	Network          network.Stats         `json:"network"`
	Performance      *performance.Snapshot `json:"performance,omitempty"`
	MonitoringActive bool                  `json:"monitoring_active"`
}

// Summary derives the current rollup. It never mutates session state and
// is safe to call while ingestion is running.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	url, active := s.url, s.active
	s.mu.RUnlock()

	summary := Summary{
		SessionID:        s.id,
		URL:              url,
		StartedAt:        s.startedAt,
		SessionDuration:  time.Since(s.startedAt).Seconds(),
		TotalEvents:      s.events.Total(),
		Console:          s.console.Stats(),
		Network:          s.network.Stats(),
		MonitoringActive: active,
	}
	if snap, ok := s.perf.Latest(); ok {
		summary.Performance = &snap
	}
	return summary
}

// Export bundles the summary with every monitor's full reporting view.
type Export struct {
	Summary      Summary                   `json:"summary"`
	Console      console.ExportSummary     `json:"console"`
	Network      network.ExportSummary     `json:"network"`
	Performance  performance.ExportSummary `json:"performance"`
	RecentEvents []telemetry.Event         `json:"recent_events"`
}

// Export assembles the full reporting view. Each monitor's section is
// internally consistent; the sections are collected one after another.
func (s *Session) Export() Export {
	return Export{
		Summary:      s.Summary(),
		Console:      s.console.ExportSummary(),
		Network:      s.network.ExportSummary(),
		Performance:  s.perf.Export(),
		RecentEvents: s.events.Recent(recentEventsLimit),
	}
}

// Close marks the session inactive. Requests still in flight are left
// pending and keep being reported in summaries; Close never waits for
// them. Closing twice is harmless.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.logger.Info("session closed",
		zap.String("session_id", s.id),
		zap.Int("pending_requests", s.network.PendingCount()),
		zap.Int("total_events", s.events.Total()),
	)
}

func consoleSeverity(level console.Level) telemetry.Severity {
	switch level {
	case console.LevelError, console.LevelAssert:
		return telemetry.SeverityError
	case console.LevelWarning:
		return telemetry.SeverityWarning
	default:
		return telemetry.SeverityInfo
	}
}
