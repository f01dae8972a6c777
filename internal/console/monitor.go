package console

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UncategorizedCategory is assigned to messages no rule matched.
const UncategorizedCategory = "uncategorized"

// MessageInput is a raw console or page-error signal as delivered by the
// browser instrumentation boundary.
type MessageInput struct {
	Level      Level  `json:"level"`
	Text       string `json:"text"`
	Location   string `json:"location,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// Message is an ingested console message enriched with classification
// results. Score only ever rises while rules are evaluated and
// ActionRequired latches true once set.
type Message struct {
	Timestamp       time.Time `json:"timestamp"`
	RelativeTime    float64   `json:"relative_time"`
	Level           Level     `json:"level"`
	Text            string    `json:"text"`
	Location        string    `json:"location,omitempty"`
	StackTrace      string    `json:"stack_trace,omitempty"`
	Category        string    `json:"category"`
	Score           int       `json:"severity_score"`
	PatternsMatched []string  `json:"patterns_matched"`
	ActionRequired  bool      `json:"action_required"`
}

// PatternCount is one entry of the frequency-sorted pattern list.
type PatternCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Analysis is the aggregate view over every ingested message. It is
// recomputed from the message list on each call and never cached, so it
// cannot drift from the underlying data.
type Analysis struct {
	TotalMessages    int            `json:"total_messages"`
	ErrorCount       int            `json:"error_count"`
	WarningCount     int            `json:"warning_count"`
	InfoCount        int            `json:"info_count"`
	Categories       map[string]int `json:"categories"`
	CriticalIssues   []string       `json:"critical_issues"`
	PatternsDetected []PatternCount `json:"patterns_detected"`
	Recommendations  []string       `json:"recommendations"`
	AverageSeverity  float64        `json:"severity_score"`
}

// CriticalIssue is the full record of a message requiring attention.
type CriticalIssue struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	Patterns  []string  `json:"patterns"`
	Location  string    `json:"location,omitempty"`
}

// CategorySummary describes one category's recent activity.
type CategorySummary struct {
	Category        string    `json:"category"`
	Count           int       `json:"count"`
	Messages        []Message `json:"messages"`
	FirstOccurrence time.Time `json:"first_occurrence,omitzero"`
	LastOccurrence  time.Time `json:"last_occurrence,omitzero"`
	UniqueMessages  int       `json:"unique_messages"`
}

// TimelineEntry is one row of the bounded recent-message timeline.
type TimelineEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	RelativeTime float64   `json:"relative_time"`
	Level        Level     `json:"level"`
	Category     string    `json:"category"`
	Text         string    `json:"text"`
}

// ExportSummary combines the analysis with per-category summaries, the
// critical issue list, and a bounded recent timeline. Every field is plain
// data, serializable without further computation.
type ExportSummary struct {
	MonitoringDuration float64                    `json:"monitoring_duration"`
	Analysis           Analysis                   `json:"analysis"`
	Categories         map[string]CategorySummary `json:"categories"`
	CriticalIssues     []CriticalIssue            `json:"critical_issues"`
	Timeline           []TimelineEntry            `json:"timeline"`
}

const (
	criticalIssueLimit = 10
	timelineLimit      = 20
	textPreviewLimit   = 100
)

// Monitor ingests console messages, classifies them against its rule table,
// and derives analyses. Ingestion and reads are safe to interleave from
// multiple goroutines.
type Monitor struct {
	mu         sync.RWMutex
	rules      []Rule
	messages   []Message
	byCategory map[string][]int
	start      time.Time
	logger     *zap.Logger
}

// NewMonitor builds a Monitor over the given rule table. Nil rules select
// DefaultRules. A nil logger is replaced with a no-op logger.
func NewMonitor(rules []Rule, logger *zap.Logger) *Monitor {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		rules:      rules,
		byCategory: make(map[string][]int),
		start:      time.Now(),
		logger:     logger,
	}
}

// Rules returns the monitor's rule table in evaluation order.
func (m *Monitor) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// AddMessage ingests one raw message. A missing text is treated as the
// empty string and simply matches no rules. Classification walks the rule
// table in order: every match records the rule name, overwrites the
// category (last match wins), raises the score to the maximum seen, and
// latches the action-required flag. A message reaching CriticalScore is
// logged immediately; that log line is the only ingestion-time side effect
// beyond storage.
func (m *Monitor) AddMessage(in MessageInput) {
	now := time.Now()
	msg := Message{
		Timestamp:       now,
		RelativeTime:    now.Sub(m.start).Seconds(),
		Level:           in.Level,
		Text:            in.Text,
		Location:        in.Location,
		StackTrace:      in.StackTrace,
		Category:        UncategorizedCategory,
		PatternsMatched: []string{},
	}

	for _, rule := range m.rules {
		if !rule.Pattern.MatchString(msg.Text) {
			continue
		}
		msg.PatternsMatched = append(msg.PatternsMatched, rule.Name)
		msg.Category = rule.Category
		if s := rule.Severity.Score(); s > msg.Score {
			msg.Score = s
		}
		if rule.ActionRequired {
			msg.ActionRequired = true
		}
	}

	m.mu.Lock()
	idx := len(m.messages)
	m.messages = append(m.messages, msg)
	m.byCategory[msg.Category] = append(m.byCategory[msg.Category], idx)
	m.mu.Unlock()

	if msg.Score >= CriticalScore {
		m.logger.Warn("critical console issue detected",
			zap.String("text", truncate(msg.Text, textPreviewLimit)),
			zap.String("category", msg.Category))
	}
}

// Analysis recomputes the aggregate view. With no messages ingested it
// returns a fully zero-valued result.
func (m *Monitor) Analysis() Analysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.analysisLocked()
}

// Stats is the lightweight level rollup used by session summaries.
type Stats struct {
	TotalMessages int `json:"total"`
	Errors        int `json:"errors"`
	Warnings      int `json:"warnings"`
	Info          int `json:"info"`
}

// Stats counts messages per reported level without running the full
// analysis.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{TotalMessages: len(m.messages)}
	for _, msg := range m.messages {
		switch msg.Level {
		case LevelError:
			s.Errors++
		case LevelWarning:
			s.Warnings++
		case LevelInfo, LevelLog:
			s.Info++
		}
	}
	return s
}

func (m *Monitor) analysisLocked() Analysis {
	analysis := Analysis{
		Categories:       map[string]int{},
		CriticalIssues:   []string{},
		PatternsDetected: []PatternCount{},
		Recommendations:  []string{},
	}
	if len(m.messages) == 0 {
		return analysis
	}

	analysis.TotalMessages = len(m.messages)

	totalScore := 0
	patternCounts := make(map[string]int)
	var critical []string
	for _, msg := range m.messages {
		switch msg.Level {
		case LevelError:
			analysis.ErrorCount++
		case LevelWarning:
			analysis.WarningCount++
		case LevelInfo, LevelLog:
			analysis.InfoCount++
		}
		totalScore += msg.Score
		for _, name := range msg.PatternsMatched {
			patternCounts[name]++
		}
		if msg.ActionRequired {
			critical = append(critical, truncate(msg.Text, textPreviewLimit))
		}
	}

	for cat, idxs := range m.byCategory {
		analysis.Categories[cat] = len(idxs)
	}

	// Most recent critical issues, capped, in arrival order.
	if len(critical) > criticalIssueLimit {
		critical = critical[len(critical)-criticalIssueLimit:]
	}
	analysis.CriticalIssues = critical

	for name, count := range patternCounts {
		analysis.PatternsDetected = append(analysis.PatternsDetected, PatternCount{Name: name, Count: count})
	}
	sort.Slice(analysis.PatternsDetected, func(i, j int) bool {
		a, b := analysis.PatternsDetected[i], analysis.PatternsDetected[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})

	analysis.Recommendations = recommendations(analysis.Categories)
	analysis.AverageSeverity = float64(totalScore) / float64(len(m.messages))

	return analysis
}

// recommendations derives the fixed-threshold advice list from per-category
// counts.
func recommendations(categories map[string]int) []string {
	recs := []string{}

	if n := categories["javascript_error"]; n > 0 {
		recs = append(recs, fmt.Sprintf("Fix %d JavaScript errors to improve application stability", n))
	}
	if n := categories["network_error"]; n > 0 {
		recs = append(recs, fmt.Sprintf("Investigate %d network failures: check API endpoints and connectivity", n))
	}
	if categories["cors_error"] > 0 {
		recs = append(recs, "Configure CORS headers properly to resolve cross-origin request issues")
	}
	if categories["performance_warning"] > 0 {
		recs = append(recs, "Address performance warnings to improve user experience")
	}
	if categories["security_error"] > 0 || categories["security_warning"] > 0 {
		recs = append(recs, "Review and fix security-related issues (CSP violations, mixed content)")
	}
	if categories["deprecation_warning"] > 0 {
		recs = append(recs, "Update deprecated API usage to prevent future compatibility issues")
	}
	if categories["framework_warning"] > 0 {
		recs = append(recs, "Address framework-specific warnings to ensure optimal performance")
	}
	if categories["debug_message"] > 5 {
		recs = append(recs, "Remove debug/development console messages from production code")
	}
	if categories["javascript_error"]+categories["network_error"] > 10 {
		recs = append(recs, "High error volume detected: prioritize error resolution")
	}

	return recs
}

// CriticalIssues returns the full records of every message that requires
// action or reached CriticalScore, newest first.
func (m *Monitor) CriticalIssues() []CriticalIssue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.criticalIssuesLocked()
}

func (m *Monitor) criticalIssuesLocked() []CriticalIssue {
	var issues []CriticalIssue
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if !msg.ActionRequired && msg.Score < CriticalScore {
			continue
		}
		issues = append(issues, CriticalIssue{
			Timestamp: msg.Timestamp,
			Level:     msg.Level,
			Text:      msg.Text,
			Category:  msg.Category,
			Patterns:  msg.PatternsMatched,
			Location:  msg.Location,
		})
	}
	return issues
}

// CategorySummary summarizes one category. An unknown category yields a
// zero-valued summary rather than an error.
func (m *Monitor) CategorySummary(category string) CategorySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.categorySummaryLocked(category)
}

func (m *Monitor) categorySummaryLocked(category string) CategorySummary {
	idxs := m.byCategory[category]
	summary := CategorySummary{Category: category, Count: len(idxs), Messages: []Message{}}
	if len(idxs) == 0 {
		return summary
	}

	recent := idxs
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	for _, i := range recent {
		summary.Messages = append(summary.Messages, m.messages[i])
	}

	unique := make(map[string]struct{}, len(idxs))
	first := m.messages[idxs[0]].Timestamp
	last := first
	for _, i := range idxs {
		msg := m.messages[i]
		unique[msg.Text] = struct{}{}
		if msg.Timestamp.Before(first) {
			first = msg.Timestamp
		}
		if msg.Timestamp.After(last) {
			last = msg.Timestamp
		}
	}
	summary.FirstOccurrence = first
	summary.LastOccurrence = last
	summary.UniqueMessages = len(unique)
	return summary
}

// ExportSummary assembles the reporting view: analysis, per-category
// summaries, critical issues, and the recent-message timeline capped at
// twenty entries. The whole summary is built under one lock acquisition so
// its parts agree with each other even while ingestion continues.
func (m *Monitor) ExportSummary() ExportSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := ExportSummary{
		MonitoringDuration: time.Since(m.start).Seconds(),
		Analysis:           m.analysisLocked(),
		CriticalIssues:     m.criticalIssuesLocked(),
	}

	summary.Categories = make(map[string]CategorySummary, len(m.byCategory))
	for cat := range m.byCategory {
		summary.Categories[cat] = m.categorySummaryLocked(cat)
	}

	msgs := m.messages
	if len(msgs) > timelineLimit {
		msgs = msgs[len(msgs)-timelineLimit:]
	}
	summary.Timeline = make([]TimelineEntry, 0, len(msgs))
	for _, msg := range msgs {
		summary.Timeline = append(summary.Timeline, TimelineEntry{
			Timestamp:    msg.Timestamp,
			RelativeTime: msg.RelativeTime,
			Level:        msg.Level,
			Category:     msg.Category,
			Text:         truncate(msg.Text, textPreviewLimit),
		})
	}
	return summary
}

// truncate shortens s to at most limit runes, marking the cut with an
// ellipsis suffix.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
