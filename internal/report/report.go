// Package report renders a finished session into markdown or JSON. The
// renderer is deterministic: plain data in, text out, no browser access.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"webscope/internal/console"
	"webscope/internal/network"
	"webscope/internal/performance"
	"webscope/internal/session"
	"webscope/internal/telemetry"
)

const timelineLimit = 20

// Verdict summarizes the session's health in one line.
func Verdict(export session.Export) string {
	consoleA := export.Console.Analysis
	networkA := export.Network.Analysis
	vitals := export.Performance.LatestVitals

	switch {
	case len(consoleA.CriticalIssues) > 0 || len(vitals.CriticalIssues) > 0:
		return "Critical issues found"
	case consoleA.ErrorCount > 0 || networkA.FailedRequests > 0:
		return "Issues require attention"
	case consoleA.WarningCount > 0 || len(networkA.Issues) > 0:
		return "Minor issues detected"
	default:
		return "No issues detected"
	}
}

// JSON marshals the full export, indented for reading.
func JSON(export session.Export) ([]byte, error) {
	return json.MarshalIndent(export, "", "  ")
}

// Markdown renders the session report.
func Markdown(export session.Export) string {
	var sb strings.Builder
	s := export.Summary

	sb.WriteString("# Session Report\n\n")
	sb.WriteString(fmt.Sprintf("- Session: `%s`\n", s.SessionID))
	if s.URL != "" {
		sb.WriteString(fmt.Sprintf("- URL: %s\n", s.URL))
	}
	sb.WriteString(fmt.Sprintf("- Started: %s\n", s.StartedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Duration: %.1fs\n", s.SessionDuration))
	sb.WriteString(fmt.Sprintf("- Events: %d\n\n", s.TotalEvents))

	sb.WriteString(fmt.Sprintf("**Verdict: %s**\n\n", Verdict(export)))

	writeConsole(&sb, export.Console)
	writeNetwork(&sb, export.Network)
	writeVitals(&sb, export.Performance.LatestVitals)
	writeRecommendations(&sb, export)
	writeTimeline(&sb, export.RecentEvents)

	return sb.String()
}

func writeConsole(sb *strings.Builder, c console.ExportSummary) {
	a := c.Analysis
	sb.WriteString("## Console\n")
	sb.WriteString(fmt.Sprintf("- Messages: %d (%d errors, %d warnings, %d info)\n",
		a.TotalMessages, a.ErrorCount, a.WarningCount, a.InfoCount))
	if len(a.Categories) > 0 {
		sb.WriteString("- Categories: " + joinCounts(a.Categories) + "\n")
	}
	if a.AverageSeverity > 0 {
		sb.WriteString(fmt.Sprintf("- Severity score: %.2f\n", a.AverageSeverity))
	}
	if len(a.CriticalIssues) > 0 {
		sb.WriteString("\n### Critical issues\n")
		for _, issue := range a.CriticalIssues {
			sb.WriteString(fmt.Sprintf("- %s\n", issue))
		}
	}
	if len(a.PatternsDetected) > 0 {
		sb.WriteString("\n### Patterns\n")
		for _, p := range a.PatternsDetected {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", p.Name, p.Count))
		}
	}
	sb.WriteString("\n")
}

func writeNetwork(sb *strings.Builder, n network.ExportSummary) {
	a := n.Analysis
	sb.WriteString("## Network\n")
	sb.WriteString(fmt.Sprintf("- Requests: %d (%d ok, %d failed, %d cached), %d still pending\n",
		a.TotalRequests, a.SuccessfulRequests, a.FailedRequests, a.CachedRequests, n.PendingRequests))
	if a.AverageResponseTime > 0 {
		sb.WriteString(fmt.Sprintf("- Average response time: %.0fms\n", a.AverageResponseTime))
	}
	if a.TotalBytes > 0 {
		line := fmt.Sprintf("- Transferred: %s", formatBytes(a.TotalBytes))
		if a.CompressionRatio > 0 {
			line += fmt.Sprintf(" (compression ratio %.2f)", a.CompressionRatio)
		}
		sb.WriteString(line + "\n")
	}
	if len(a.StatusCodes) > 0 {
		sb.WriteString("- Status codes: " + joinStatusCodes(a.StatusCodes) + "\n")
	}
	if len(a.SlowestRequests) > 0 {
		sb.WriteString("\n### Slowest requests\n")
		for i, r := range a.SlowestRequests {
			if i >= 3 {
				break
			}
			sb.WriteString(fmt.Sprintf("- %.0fms %s %s (%d)\n", r.Duration, r.Method, r.URL, r.Status))
		}
	}
	if len(a.Issues) > 0 {
		sb.WriteString("\n### Issues\n")
		for _, issue := range a.Issues {
			sb.WriteString(fmt.Sprintf("- %s\n", issue))
		}
	}
	sb.WriteString("\n")
}

func writeVitals(sb *strings.Builder, v performance.VitalsReport) {
	sb.WriteString("## Web vitals\n")
	if v.LCP != nil {
		sb.WriteString(fmt.Sprintf("- Largest contentful paint: %.0fms (%s)\n", *v.LCP, v.LCPGrade))
	}
	if v.FCP != nil {
		sb.WriteString(fmt.Sprintf("- First contentful paint: %.0fms (%s)\n", *v.FCP, v.FCPGrade))
	}
	if v.CLS != nil {
		sb.WriteString(fmt.Sprintf("- Cumulative layout shift: %.3f (%s)\n", *v.CLS, v.CLSGrade))
	}
	sb.WriteString(fmt.Sprintf("- Overall: %.0f/100 (%s)\n", v.OverallScore, v.OverallGrade))
	if v.MemoryUsagePercent != nil {
		sb.WriteString(fmt.Sprintf("- Memory: %.1f%% of heap limit (%s)\n", *v.MemoryUsagePercent, v.MemoryGrade))
	}
	if len(v.CriticalIssues) > 0 {
		sb.WriteString("\n### Critical issues\n")
		for _, issue := range v.CriticalIssues {
			sb.WriteString(fmt.Sprintf("- %s\n", issue))
		}
	}
	sb.WriteString("\n")
}

func writeRecommendations(sb *strings.Builder, export session.Export) {
	var recs []string
	seen := make(map[string]bool)
	for _, group := range [][]string{
		export.Console.Analysis.Recommendations,
		export.Network.Analysis.Recommendations,
		export.Performance.LatestVitals.Recommendations,
	} {
		for _, r := range group {
			if seen[r] {
				continue
			}
			seen[r] = true
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		return
	}
	sb.WriteString("## Recommendations\n")
	for _, r := range recs {
		sb.WriteString(fmt.Sprintf("- %s\n", r))
	}
	sb.WriteString("\n")
}

func writeTimeline(sb *strings.Builder, events []telemetry.Event) {
	if len(events) == 0 {
		return
	}
	sb.WriteString("## Recent events\n")
	for i, ev := range events {
		if i >= timelineLimit {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(events)-timelineLimit))
			break
		}
		line := fmt.Sprintf("- %s `%s` %s", ev.Timestamp.Format("15:04:05.000"), ev.Severity, ev.Type)
		if detail := eventDetail(ev.Data); detail != "" {
			line += ": " + detail
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")
}

// eventDetail picks the most telling field of an event payload.
func eventDetail(data map[string]any) string {
	for _, key := range []string{"text", "message", "error", "url", "action"} {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return truncate(s, 120)
			}
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func joinCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s (%d)", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func joinStatusCodes(codes map[int]int) string {
	keys := make([]int, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d x%d", k, codes[k]))
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
