package console

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAddMessageClassifiesUncaughtException(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught TypeError: x is undefined"})

	analysis := m.Analysis()
	assert.Equal(t, 1, analysis.TotalMessages)
	assert.Equal(t, 1, analysis.ErrorCount)
	assert.Equal(t, 1, analysis.Categories["javascript_error"])
	require.Len(t, analysis.CriticalIssues, 1)
	assert.Equal(t, "Uncaught TypeError: x is undefined", analysis.CriticalIssues[0])

	issues := m.CriticalIssues()
	require.Len(t, issues, 1)
	assert.False(t, issues[0].Timestamp.IsZero())
	assert.Equal(t, "javascript_error", issues[0].Category)
	assert.Contains(t, issues[0].Patterns, "uncaught_exception")
}

func TestSeverityScoreIsMaxNotSum(t *testing.T) {
	m := NewMonitor(nil, nil)

	// Matches uncaught_exception (5), memory_warning (3) and debug_message (0).
	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught TypeError: memory debug overflow"})

	msgs := m.ExportSummary().Timeline
	require.Len(t, msgs, 1)

	issues := m.CriticalIssues()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Patterns, "uncaught_exception")
	assert.Contains(t, issues[0].Patterns, "memory_warning")
	assert.Contains(t, issues[0].Patterns, "debug_message")

	analysis := m.Analysis()
	assert.Equal(t, 5.0, analysis.AverageSeverity, "score stays at the maximum matching rule, lower matches never reduce it")
}

func TestLastMatchWinsCategory(t *testing.T) {
	m := NewMonitor(nil, nil)

	// uncaught_exception matches first, debug_message matches last.
	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught Error in development build"})

	analysis := m.Analysis()
	assert.Equal(t, 1, analysis.Categories["debug_message"], "the last matching rule in table order decides the category")
	assert.Equal(t, 0, analysis.Categories["javascript_error"])

	// ActionRequired latched by the earlier rule survives the later match.
	require.Len(t, m.CriticalIssues(), 1)
}

func TestUnmatchedMessageStaysUncategorized(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelError, Text: "qqq zzz"})

	analysis := m.Analysis()
	assert.Equal(t, 1, analysis.Categories[UncategorizedCategory])
	assert.Equal(t, 0.0, analysis.AverageSeverity, "a rule-less message scores zero even at error level")
	assert.Empty(t, m.CriticalIssues())
}

func TestMissingTextMatchesNoRules(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelInfo})

	analysis := m.Analysis()
	assert.Equal(t, 1, analysis.TotalMessages)
	assert.Equal(t, 1, analysis.Categories[UncategorizedCategory])
	assert.Empty(t, analysis.PatternsDetected)
}

func TestEmptyMonitorAnalysisIsZeroValued(t *testing.T) {
	m := NewMonitor(nil, nil)

	analysis := m.Analysis()
	assert.Equal(t, 0, analysis.TotalMessages)
	assert.Equal(t, 0, analysis.ErrorCount)
	assert.Equal(t, 0, analysis.WarningCount)
	assert.Equal(t, 0, analysis.InfoCount)
	assert.Empty(t, analysis.Categories)
	assert.Empty(t, analysis.CriticalIssues)
	assert.Empty(t, analysis.PatternsDetected)
	assert.Empty(t, analysis.Recommendations)
	assert.Equal(t, 0.0, analysis.AverageSeverity)
}

func TestLevelCountsUseOriginalLevels(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelError, Text: "plain failure text"})
	m.AddMessage(MessageInput{Level: LevelWarning, Text: "plain warning text"})
	m.AddMessage(MessageInput{Level: LevelInfo, Text: "plain note"})
	m.AddMessage(MessageInput{Level: LevelLog, Text: "plain line"})
	m.AddMessage(MessageInput{Level: LevelDebug, Text: "verbose output"})

	analysis := m.Analysis()
	assert.Equal(t, 5, analysis.TotalMessages)
	assert.Equal(t, 1, analysis.ErrorCount)
	assert.Equal(t, 1, analysis.WarningCount)
	assert.Equal(t, 2, analysis.InfoCount, "info and log levels count together")
}

func TestCriticalIssuesNewestFirstAndAnalysisCap(t *testing.T) {
	m := NewMonitor(nil, nil)

	for i := 0; i < 13; i++ {
		m.AddMessage(MessageInput{
			Level: LevelError,
			Text:  fmt.Sprintf("Uncaught TypeError: failure %02d", i),
		})
	}

	issues := m.CriticalIssues()
	require.Len(t, issues, 13)
	assert.Contains(t, issues[0].Text, "failure 12", "newest first")
	assert.Contains(t, issues[12].Text, "failure 00")

	analysis := m.Analysis()
	require.Len(t, analysis.CriticalIssues, 10, "analysis keeps the ten most recent")
	assert.Contains(t, analysis.CriticalIssues[0], "failure 03")
	assert.Contains(t, analysis.CriticalIssues[9], "failure 12")
}

func TestCriticalIssueTextTruncated(t *testing.T) {
	m := NewMonitor(nil, nil)

	long := "Uncaught TypeError: " + strings.Repeat("x", 200)
	m.AddMessage(MessageInput{Level: LevelError, Text: long})

	analysis := m.Analysis()
	require.Len(t, analysis.CriticalIssues, 1)
	assert.Len(t, []rune(analysis.CriticalIssues[0]), 103)
	assert.True(t, strings.HasSuffix(analysis.CriticalIssues[0], "..."))
}

func TestRecommendationThresholds(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught ReferenceError: y is not defined"})
	for i := 0; i < 6; i++ {
		m.AddMessage(MessageInput{Level: LevelLog, Text: fmt.Sprintf("debug checkpoint %d", i)})
	}

	recs := m.Analysis().Recommendations
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0], "Fix 1 JavaScript errors")

	joined := strings.Join(recs, "\n")
	assert.Contains(t, joined, "Remove debug/development console messages")
	assert.NotContains(t, joined, "High error volume", "needs more than 10 errors")
}

func TestHighErrorVolumeRecommendation(t *testing.T) {
	m := NewMonitor(nil, nil)

	for i := 0; i < 7; i++ {
		m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught SyntaxError: bad token"})
	}
	for i := 0; i < 4; i++ {
		m.AddMessage(MessageInput{Level: LevelError, Text: "Failed to load resource: net::ERR_FAILED"})
	}

	joined := strings.Join(m.Analysis().Recommendations, "\n")
	assert.Contains(t, joined, "High error volume")
}

func TestPatternsDetectedFrequencySorted(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelWarning, Text: "page is slow"})
	m.AddMessage(MessageInput{Level: LevelWarning, Text: "rendering is slow again"})
	m.AddMessage(MessageInput{Level: LevelWarning, Text: "API deprecated, will be removed"})

	patterns := m.Analysis().PatternsDetected
	require.Len(t, patterns, 2)
	assert.Equal(t, PatternCount{Name: "performance_warning", Count: 2}, patterns[0])
	assert.Equal(t, PatternCount{Name: "deprecation", Count: 1}, patterns[1])
}

func TestCategorySummary(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.AddMessage(MessageInput{Level: LevelWarning, Text: "slow frame"})
	m.AddMessage(MessageInput{Level: LevelWarning, Text: "slow frame"})
	m.AddMessage(MessageInput{Level: LevelWarning, Text: "slow paint"})

	summary := m.CategorySummary("performance_warning")
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 2, summary.UniqueMessages)
	assert.Len(t, summary.Messages, 3)
	assert.False(t, summary.FirstOccurrence.IsZero())
	assert.False(t, summary.FirstOccurrence.After(summary.LastOccurrence))

	unknown := m.CategorySummary("no_such_category")
	assert.Equal(t, 0, unknown.Count)
	assert.Empty(t, unknown.Messages)
	assert.True(t, unknown.FirstOccurrence.IsZero())
}

func TestExportSummaryConsistentWithAnalysis(t *testing.T) {
	m := NewMonitor(nil, nil)

	for i := 0; i < 25; i++ {
		m.AddMessage(MessageInput{Level: LevelLog, Text: fmt.Sprintf("checkpoint %d", i)})
	}
	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught TypeError: boom"})

	export := m.ExportSummary()
	analysis := m.Analysis()

	assert.Equal(t, analysis.TotalMessages, export.Analysis.TotalMessages)
	assert.Equal(t, analysis.Categories, export.Analysis.Categories)
	assert.Len(t, export.Timeline, 20, "timeline is capped")
	assert.GreaterOrEqual(t, export.MonitoringDuration, 0.0)

	total := 0
	for _, cs := range export.Categories {
		total += cs.Count
	}
	assert.Equal(t, analysis.TotalMessages, total, "category summaries partition all messages")
}

func TestCustomRuleAppendedWinsCategory(t *testing.T) {
	rules := append(DefaultRules(), Rule{
		Name:           "payment_failure",
		Pattern:        regexp.MustCompile(`(?i)payment.*declined`),
		Category:       "payment_error",
		Severity:       LevelError,
		ActionRequired: true,
	})
	m := NewMonitor(rules, nil)

	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught Error: payment was declined"})

	analysis := m.Analysis()
	assert.Equal(t, 1, analysis.Categories["payment_error"])
}

func TestCriticalIngestionSideEffectLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := NewMonitor(nil, zap.New(core))

	m.AddMessage(MessageInput{Level: LevelError, Text: "Uncaught TypeError: x"})
	m.AddMessage(MessageInput{Level: LevelLog, Text: "plain line"})

	entries := logs.FilterMessage("critical console issue detected").All()
	require.Len(t, entries, 1, "only the critical message logs at ingestion")
}

func TestConcurrentIngestionAndReads(t *testing.T) {
	m := NewMonitor(nil, nil)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				m.AddMessage(MessageInput{Level: LevelLog, Text: "interleaved line"})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 60; i++ {
			_ = m.Analysis()
			_ = m.ExportSummary()
		}
	}()
	wg.Wait()

	assert.Equal(t, 160, m.Analysis().TotalMessages)
}
