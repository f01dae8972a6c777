package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/internal/console"
	"webscope/internal/network"
	"webscope/internal/performance"
	"webscope/internal/session"
)

func fptr(v float64) *float64 { return &v }

func newSession() *session.Session {
	return session.New("https://example.com", session.Options{})
}

func TestVerdictTiers(t *testing.T) {
	clean := newSession()
	clean.RecordConsole(console.MessageInput{Level: console.LevelInfo, Text: "boot complete"})
	assert.Equal(t, "No issues detected", Verdict(clean.Export()))

	minor := newSession()
	minor.RecordConsole(console.MessageInput{Level: console.LevelWarning, Text: "custom warning xyz"})
	assert.Equal(t, "Minor issues detected", Verdict(minor.Export()))

	attention := newSession()
	attention.RecordConsole(console.MessageInput{Level: console.LevelError, Text: "something odd happened"})
	assert.Equal(t, "Issues require attention", Verdict(attention.Export()))

	failing := newSession()
	id := failing.RecordRequest(network.RequestInput{URL: "https://example.com/api", Method: "GET"})
	failing.RecordFailure(id, "net::ERR_CONNECTION_REFUSED", "")
	assert.Equal(t, "Issues require attention", Verdict(failing.Export()))

	critical := newSession()
	critical.RecordConsole(console.MessageInput{Level: console.LevelError, Text: "Uncaught TypeError: x is not a function"})
	assert.Equal(t, "Critical issues found", Verdict(critical.Export()))
}

func TestMarkdownIncludesSections(t *testing.T) {
	sess := newSession()
	sess.RecordConsole(console.MessageInput{Level: console.LevelError, Text: "Uncaught TypeError: boom"})

	id := sess.RecordRequest(network.RequestInput{URL: "https://example.com/app.js", Method: "GET"})
	sess.RecordResponse(id, network.ResponseInput{Status: 200})
	failed := sess.RecordRequest(network.RequestInput{URL: "https://example.com/api", Method: "POST"})
	sess.RecordFailure(failed, "net::ERR_FAILED", "")

	sess.CapturePerformance(context.Background(), performance.SamplerFunc(
		func(ctx context.Context) (performance.Snapshot, error) {
			return performance.Snapshot{
				LargestContentfulPaint: fptr(5200),
				FirstContentfulPaint:   fptr(2100),
				CumulativeLayoutShift:  fptr(0.4),
			}, nil
		}))

	md := Markdown(sess.Export())

	assert.Contains(t, md, "# Session Report")
	assert.Contains(t, md, "- URL: https://example.com")
	assert.Contains(t, md, "**Verdict: Critical issues found**")
	assert.Contains(t, md, "## Console")
	assert.Contains(t, md, "### Critical issues")
	assert.Contains(t, md, "## Network")
	assert.Contains(t, md, "- Requests: 2 (1 ok, 1 failed, 0 cached), 0 still pending")
	assert.Contains(t, md, "200 x1")
	assert.Contains(t, md, "## Web vitals")
	assert.Contains(t, md, "Largest contentful paint: 5200ms (poor)")
	assert.Contains(t, md, "Cumulative layout shift: 0.400 (poor)")
	assert.Contains(t, md, "## Recommendations")
	assert.Contains(t, md, "## Recent events")
	assert.Contains(t, md, sess.ID())
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	md := Markdown(newSession().Export())

	assert.Contains(t, md, "## Console")
	assert.Contains(t, md, "## Network")
	assert.Contains(t, md, "- Overall: 50/100 (needs_improvement)")
	assert.Contains(t, md, "**Verdict: No issues detected**")
	assert.NotContains(t, md, "### Critical issues")
	assert.NotContains(t, md, "## Recommendations")
	assert.NotContains(t, md, "## Recent events")
}

func TestJSONExport(t *testing.T) {
	sess := newSession()
	sess.RecordConsole(console.MessageInput{Level: console.LevelInfo, Text: "hello"})

	raw, err := JSON(sess.Export())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	summary, ok := decoded["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, sess.ID(), summary["session_id"])
	assert.Contains(t, decoded, "recent_events")
	assert.Contains(t, decoded, "console")
	assert.Contains(t, decoded, "network")
	assert.Contains(t, decoded, "performance")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "2.0KB", formatBytes(2048))
	assert.Equal(t, "3.0MB", formatBytes(3<<20))
}

func TestJoinStatusCodes(t *testing.T) {
	got := joinStatusCodes(map[int]int{404: 1, 200: 12})
	assert.Equal(t, "200 x12, 404 x1", got)
}

func TestEventDetailPrefersText(t *testing.T) {
	assert.Equal(t, "boom", eventDetail(map[string]any{"text": "boom", "url": "https://x"}))
	assert.Equal(t, "https://x", eventDetail(map[string]any{"url": "https://x"}))
	assert.Equal(t, "", eventDetail(nil))

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	detail := eventDetail(map[string]any{"text": string(long)})
	assert.Len(t, detail, 123)
	assert.Contains(t, detail, "...")
}
