package webview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"webscope/internal/console"
	"webscope/internal/network"
	"webscope/internal/performance"
	"webscope/internal/session"
)

func fptr(v float64) *float64 { return &v }

func populatedSession() *session.Session {
	sess := session.New("https://example.com", session.Options{})
	sess.RecordConsole(console.MessageInput{Level: console.LevelError, Text: "Uncaught TypeError: x is not a function"})
	sess.RecordConsole(console.MessageInput{Level: console.LevelLog, Text: "boot"})

	id := sess.RecordRequest(network.RequestInput{URL: "https://example.com/app.js", Method: "GET", ResourceType: "script"})
	sess.RecordResponse(id, network.ResponseInput{Status: 200})
	failed := sess.RecordRequest(network.RequestInput{URL: "https://example.com/missing.png", Method: "GET"})
	sess.RecordFailure(failed, "net::ERR_ABORTED", "")

	sess.CapturePerformance(context.Background(), performance.SamplerFunc(
		func(ctx context.Context) (performance.Snapshot, error) {
			return performance.Snapshot{
				Timestamp:              time.Now(),
				LargestContentfulPaint: fptr(1800),
				FirstContentfulPaint:   fptr(900),
			}, nil
		},
	))
	return sess
}

func getJSON(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	sess := populatedSession()
	srv := NewServer("127.0.0.1:0", sess, nil)

	var body map[string]any
	rec := getJSON(t, srv.Handler(), "/healthz", &body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, sess.ID(), body["session_id"])
	assert.Equal(t, true, body["active"])
}

func TestSummaryEndpoint(t *testing.T) {
	sess := populatedSession()
	srv := NewServer("127.0.0.1:0", sess, nil)

	var sum session.Summary
	rec := getJSON(t, srv.Handler(), "/api/summary", &sum)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sess.ID(), sum.SessionID)
	assert.Equal(t, "https://example.com", sum.URL)
	assert.Equal(t, 2, sum.Console.TotalMessages)
	assert.NotNil(t, sum.Performance)
}

func TestSectionEndpoints(t *testing.T) {
	sess := populatedSession()
	h := NewServer("127.0.0.1:0", sess, nil).Handler()

	var consoleOut console.ExportSummary
	rec := getJSON(t, h, "/api/console", &consoleOut)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, consoleOut.Analysis.TotalMessages)
	assert.NotEmpty(t, consoleOut.CriticalIssues)

	var netOut network.ExportSummary
	rec = getJSON(t, h, "/api/network", &netOut)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, netOut.Analysis.TotalRequests)
	assert.Equal(t, 1, netOut.Analysis.FailedRequests)

	var perfOut performance.ExportSummary
	rec = getJSON(t, h, "/api/performance", &perfOut)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, perfOut.SnapshotCount)
	require.NotNil(t, perfOut.LatestVitals.LCP)
	assert.InDelta(t, 1800, *perfOut.LatestVitals.LCP, 0.01)
	assert.Equal(t, performance.GradeExcellent, perfOut.LatestVitals.LCPGrade)
}

func TestExportEndpoint(t *testing.T) {
	sess := populatedSession()

	var body map[string]json.RawMessage
	rec := getJSON(t, NewServer("127.0.0.1:0", sess, nil).Handler(), "/api/export", &body)

	require.Equal(t, http.StatusOK, rec.Code)
	for _, key := range []string{"summary", "console", "network", "performance", "recent_events"} {
		assert.Contains(t, body, key)
	}
}

func TestEventsEndpoint(t *testing.T) {
	sess := populatedSession()
	h := NewServer("127.0.0.1:0", sess, nil).Handler()

	var body struct {
		SessionID string           `json:"session_id"`
		Count     int              `json:"count"`
		Events    []map[string]any `json:"events"`
	}
	rec := getJSON(t, h, "/api/events", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sess.ID(), body.SessionID)
	assert.Equal(t, len(body.Events), body.Count)
	assert.NotZero(t, body.Count)

	rec = getJSON(t, h, "/api/events?limit=1", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, body.Count)
}

func TestEventsEndpointRejectsBadLimit(t *testing.T) {
	h := NewServer("127.0.0.1:0", populatedSession(), nil).Handler()

	for _, raw := range []string{"zero", "-3", "0"} {
		rec := getJSON(t, h, "/api/events?limit="+raw, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", raw)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], "limit")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	rec := getJSON(t, NewServer("127.0.0.1:0", populatedSession(), nil).Handler(), "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartServesAndShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := NewServer("127.0.0.1:0", populatedSession(), nil)
	require.NoError(t, srv.Start())
	defer http.DefaultClient.CloseIdleConnections()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
