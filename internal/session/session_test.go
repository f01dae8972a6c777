package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/internal/console"
	"webscope/internal/network"
	"webscope/internal/performance"
	"webscope/internal/telemetry"
)

func TestNewSessionIsActive(t *testing.T) {
	s := New("https://app.example.com", Options{})

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "https://app.example.com", s.URL())
	assert.True(t, s.Active())
	assert.False(t, s.StartedAt().IsZero())
	assert.Zero(t, s.Events().Total())
}

func TestRecordConsoleRoutesAndMirrors(t *testing.T) {
	s := New("https://app.example.com", Options{})

	s.RecordConsole(console.MessageInput{
		Level: console.LevelError,
		Text:  "Uncaught TypeError: x is not a function",
	})
	s.RecordConsole(console.MessageInput{
		Level: console.LevelWarning,
		Text:  "Deprecated API usage detected",
	})
	s.RecordConsole(console.MessageInput{
		Level: console.LevelLog,
		Text:  "app ready",
	})

	stats := s.Console().Stats()
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Warnings)
	assert.Equal(t, 1, stats.Info)

	events := s.Events().Snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, telemetry.EventConsole, events[0].Type)
	assert.Equal(t, telemetry.SeverityError, events[0].Severity)
	assert.Equal(t, telemetry.SeverityWarning, events[1].Severity)
	assert.Equal(t, telemetry.SeverityInfo, events[2].Severity)
	assert.Equal(t, "Uncaught TypeError: x is not a function", events[0].Data["text"])
}

func TestRecordPageErrorReachesClassifier(t *testing.T) {
	s := New("https://app.example.com", Options{})

	s.RecordPageError("Uncaught ReferenceError: foo is not defined", "at main.js:10")

	analysis := s.Console().Analysis()
	assert.Equal(t, 1, analysis.TotalMessages)
	assert.Equal(t, 1, analysis.ErrorCount)
	assert.Equal(t, 1, analysis.Categories["javascript_error"])

	events := s.Events().Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventError, events[0].Type)
	assert.Equal(t, telemetry.SeverityError, events[0].Severity)
	assert.Equal(t, "javascript", events[0].Data["type"])
	assert.Equal(t, "at main.js:10", events[0].Data["stack"])
}

func TestNetworkLifecycleMirrorsEvents(t *testing.T) {
	s := New("https://app.example.com", Options{})

	id := s.RecordRequest(network.RequestInput{
		RequestID: "r1",
		URL:       "https://api.example.com/users",
		Method:    "GET",
	})
	require.Equal(t, "r1", id)
	s.RecordResponse(id, network.ResponseInput{Status: 200})

	failedID := s.RecordRequest(network.RequestInput{
		RequestID: "r2",
		URL:       "https://api.example.com/orders",
		Method:    "POST",
	})
	s.RecordFailure(failedID, "net::ERR_CONNECTION_REFUSED", "")

	stats := s.Network().Stats()
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.FailedRequests)
	assert.Zero(t, stats.PendingRequests)
	assert.Equal(t, 1, stats.StatusCodes[200])

	events := s.Events().Snapshot()
	require.Len(t, events, 4)
	for _, ev := range events {
		assert.Equal(t, telemetry.EventNetwork, ev.Type)
	}
	assert.Equal(t, "request", events[0].Data["type"])
	assert.Equal(t, "response", events[1].Data["type"])
	assert.Equal(t, telemetry.SeverityError, events[3].Severity, "request failure mirrors as an error event")
	assert.Equal(t, "net::ERR_CONNECTION_REFUSED", events[3].Data["error"])
}

func TestCapturePerformanceMirrorsEvent(t *testing.T) {
	s := New("https://app.example.com", Options{})

	load := 742.0
	snap := s.CapturePerformance(context.Background(), performance.SamplerFunc(func(ctx context.Context) (performance.Snapshot, error) {
		return performance.Snapshot{PageLoadTime: &load}, nil
	}))
	require.NotNil(t, snap.PageLoadTime)

	assert.Equal(t, 1, s.Performance().Count())
	events := s.Events().Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventPerformance, events[0].Type)
}

func TestRecordNavigationUpdatesURL(t *testing.T) {
	s := New("https://app.example.com", Options{})

	s.RecordNavigation("https://app.example.com/dashboard")

	assert.Equal(t, "https://app.example.com/dashboard", s.URL())
	events := s.Events().Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventNavigation, events[0].Type)
	assert.Equal(t, "https://app.example.com/dashboard", events[0].Data["url"])
}

func TestRecordInteractionMergesDetail(t *testing.T) {
	s := New("https://app.example.com", Options{})

	s.RecordInteraction("click", map[string]any{"selector": "#submit"})

	events := s.Events().Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventInteraction, events[0].Type)
	assert.Equal(t, "click", events[0].Data["action"])
	assert.Equal(t, "#submit", events[0].Data["selector"])
}

func TestSummaryReflectsMonitors(t *testing.T) {
	s := New("https://app.example.com", Options{})

	s.RecordConsole(console.MessageInput{Level: console.LevelError, Text: "boom"})
	s.RecordConsole(console.MessageInput{Level: console.LevelInfo, Text: "ok"})
	id := s.RecordRequest(network.RequestInput{RequestID: "r1", URL: "https://a.example.com/x", Method: "GET"})
	s.RecordResponse(id, network.ResponseInput{Status: 404})
	s.RecordRequest(network.RequestInput{RequestID: "r2", URL: "https://a.example.com/y", Method: "GET"})

	load := 1200.0
	s.CapturePerformance(context.Background(), performance.SamplerFunc(func(ctx context.Context) (performance.Snapshot, error) {
		return performance.Snapshot{PageLoadTime: &load}, nil
	}))

	summary := s.Summary()
	assert.Equal(t, s.ID(), summary.SessionID)
	assert.True(t, summary.MonitoringActive)
	assert.GreaterOrEqual(t, summary.SessionDuration, 0.0)
	assert.Equal(t, 5, summary.TotalEvents)

	assert.Equal(t, 2, summary.Console.TotalMessages)
	assert.Equal(t, 1, summary.Console.Errors)
	assert.Equal(t, 1, summary.Console.Info)

	assert.Equal(t, 2, summary.Network.TotalRequests)
	assert.Equal(t, 1, summary.Network.PendingRequests)
	assert.Equal(t, 1, summary.Network.StatusCodes[404])

	require.NotNil(t, summary.Performance)
	assert.Equal(t, 1200.0, *summary.Performance.PageLoadTime)
}

func TestSummaryEmptySession(t *testing.T) {
	summary := New("", Options{}).Summary()

	assert.Zero(t, summary.TotalEvents)
	assert.Zero(t, summary.Console.TotalMessages)
	assert.Zero(t, summary.Network.TotalRequests)
	assert.Nil(t, summary.Performance)
	assert.True(t, summary.MonitoringActive)
}

func TestCloseLeavesPendingReported(t *testing.T) {
	s := New("https://app.example.com", Options{})
	s.RecordRequest(network.RequestInput{RequestID: "r1", URL: "https://a.example.com/x", Method: "GET"})

	s.Close()
	s.Close()

	assert.False(t, s.Active())
	summary := s.Summary()
	assert.False(t, summary.MonitoringActive)
	assert.Equal(t, 1, summary.Network.PendingRequests, "in-flight request survives teardown")
}

func TestCustomRulesWinCategorization(t *testing.T) {
	s := New("https://app.example.com", Options{
		ConsoleRules: []console.Rule{{
			Name:     "payment_failure",
			Pattern:  regexp.MustCompile(`(?i)payment.*declined`),
			Category: "payment_error",
			Severity: console.LevelError,
		}},
	})

	s.RecordConsole(console.MessageInput{
		Level: console.LevelError,
		Text:  "Uncaught TypeError: payment was declined",
	})

	analysis := s.Console().Analysis()
	assert.Equal(t, 1, analysis.Categories["payment_error"], "appended rule takes the category")
}

func TestExportBundlesEverything(t *testing.T) {
	s := New("https://app.example.com", Options{})
	s.RecordConsole(console.MessageInput{Level: console.LevelWarning, Text: "CORS policy blocked request"})
	id := s.RecordRequest(network.RequestInput{RequestID: "r1", URL: "https://a.example.com/x", Method: "GET"})
	s.RecordResponse(id, network.ResponseInput{Status: 200})

	export := s.Export()
	assert.Equal(t, s.ID(), export.Summary.SessionID)
	assert.Equal(t, 1, export.Console.Analysis.TotalMessages)
	assert.Equal(t, 1, export.Network.Analysis.TotalRequests)
	assert.NotEmpty(t, export.RecentEvents)
	assert.Equal(t, 50.0, export.Performance.LatestVitals.OverallScore, "no vitals measured yet")
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(Options{})

	first := m.Create("https://one.example.com")
	time.Sleep(2 * time.Millisecond)
	second := m.Create("https://two.example.com")
	require.Equal(t, 2, m.Len())
	require.NotEqual(t, first.ID(), second.ID())

	got, err := m.Get(first.ID())
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = m.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID(), list[0].SessionID, "summaries are ordered oldest first")

	require.NoError(t, m.Close(second.ID()))
	assert.False(t, second.Active())
	assert.Equal(t, 2, m.Len(), "closed sessions stay available for reporting")

	m.CloseAll()
	assert.False(t, first.Active())
}

func TestManagerCloseUnknown(t *testing.T) {
	m := NewManager(Options{})
	err := m.Close("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestConcurrentIngestionAndSummary(t *testing.T) {
	s := New("https://app.example.com", Options{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				reqID := fmt.Sprintf("w%d-r%d", worker, j)
				s.RecordConsole(console.MessageInput{Level: console.LevelInfo, Text: "tick"})
				s.RecordRequest(network.RequestInput{RequestID: reqID, URL: "https://a.example.com/x", Method: "GET"})
				s.RecordResponse(reqID, network.ResponseInput{Status: 200})
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			s.Summary()
			s.Export()
		}
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("ingestion did not finish")
	}

	summary := s.Summary()
	assert.Equal(t, 100, summary.Console.TotalMessages)
	assert.Equal(t, 100, summary.Network.TotalRequests)
	assert.Zero(t, summary.Network.PendingRequests)
	assert.Equal(t, 300, summary.TotalEvents)
}
