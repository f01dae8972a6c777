// Package dashboard renders a live terminal view of one telemetry
// session: rolling counters in the header, graded web vitals, and a
// scrolling event feed. It only reads from the session; the browser
// driver keeps writing while the dashboard is up.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"webscope/internal/performance"
	"webscope/internal/session"
	"webscope/internal/telemetry"
)

const (
	refreshInterval = 500 * time.Millisecond
	feedLimit       = 200
)

type tickMsg time.Time

// doneMsg carries the evaluation result once the browser run finishes.
type doneMsg struct{ err error }

// Model is the bubbletea model for the live session view.
type Model struct {
	sess *session.Session
	done <-chan error

	width  int
	height int
	ready  bool

	viewport viewport.Model
	spinner  spinner.Model

	// Data refreshed on every tick.
	summary session.Summary
	vitals  performance.VitalsReport

	running bool
	runErr  error

	styles Styles
}

// New builds a dashboard over sess. The done channel reports the end of
// the browser run; pass nil to keep the dashboard in monitoring state
// until the user quits.
func New(sess *session.Session, done <-chan error) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)

	m := Model{
		sess:     sess,
		done:     done,
		viewport: vp,
		spinner:  sp,
		running:  true,
		styles:   DefaultStyles(),
	}
	m.spinner.Style = m.styles.Spinner
	m.refresh()
	return m
}

// Init starts the spinner, the refresh ticker, and the completion
// listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tick()}
	if m.done != nil {
		cmds = append(cmds, m.waitForDone())
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForDone blocks on the completion channel and surfaces the result
// as a message.
func (m Model) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-m.done}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case doneMsg:
		m.running = false
		m.runErr = msg.err
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.running {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) setSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w - 4
	m.viewport.Height = h - 9 // header, stats, vitals, status, footer
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.ready = true
	m.refresh()
}

// refresh pulls the current rollup out of the session and rebuilds the
// feed content.
func (m *Model) refresh() {
	if m.sess == nil {
		return
	}
	m.summary = m.sess.Summary()
	m.vitals = m.sess.Performance().LatestVitals()

	events := m.sess.Events().Recent(feedLimit)
	var sb strings.Builder
	for _, ev := range events {
		sb.WriteString(m.eventLine(ev))
		sb.WriteByte('\n')
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(sb.String())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) eventLine(ev telemetry.Event) string {
	style := m.styles.Muted
	switch ev.Severity {
	case telemetry.SeverityError:
		style = m.styles.Error
	case telemetry.SeverityWarning:
		style = m.styles.Warning
	case telemetry.SeverityInfo:
		style = m.styles.Info
	}
	detail := eventDetail(ev)
	line := fmt.Sprintf("%s %-11s %s",
		ev.Timestamp.Format("15:04:05.000"),
		ev.Type,
		detail,
	)
	return style.Render(line)
}

// eventDetail extracts the most telling data field for the feed.
func eventDetail(ev telemetry.Event) string {
	for _, key := range []string{"text", "message", "error", "url", "action"} {
		if v, ok := ev.Data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return truncate(s, 110)
			}
		}
	}
	return string(ev.Severity)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "starting dashboard..."
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(" webscope "+m.summary.URL) + "\n\n")
	sb.WriteString(m.statsLine() + "\n")
	sb.WriteString(m.vitalsLine() + "\n")
	sb.WriteString(m.statusLine() + "\n")
	sb.WriteString(m.styles.Feed.Render(m.viewport.View()) + "\n")
	sb.WriteString(m.styles.Footer.Render("[q] quit  [↑/↓] scroll"))
	return sb.String()
}

func (m Model) statsLine() string {
	c := m.summary.Console
	n := m.summary.Network

	consoleStyle := m.styles.Value
	if c.Errors > 0 {
		consoleStyle = m.styles.Error
	} else if c.Warnings > 0 {
		consoleStyle = m.styles.Warning
	}
	netStyle := m.styles.Value
	if n.FailedRequests > 0 {
		netStyle = m.styles.Error
	}

	parts := []string{
		m.styles.Label.Render("events ") + m.styles.Value.Render(fmt.Sprintf("%d", m.summary.TotalEvents)),
		m.styles.Label.Render("console ") + consoleStyle.Render(fmt.Sprintf("%d (%d err, %d warn)", c.TotalMessages, c.Errors, c.Warnings)),
		m.styles.Label.Render("requests ") + netStyle.Render(fmt.Sprintf("%d (%d failed, %d pending)", n.TotalRequests, n.FailedRequests, n.PendingRequests)),
		m.styles.Label.Render("elapsed ") + m.styles.Value.Render(fmt.Sprintf("%.0fs", m.summary.SessionDuration)),
	}
	return "  " + strings.Join(parts, m.styles.Muted.Render("  │  "))
}

func (m Model) vitalsLine() string {
	if m.summary.Performance == nil {
		return "  " + m.styles.Muted.Render("vitals: not sampled yet")
	}
	v := m.vitals

	var parts []string
	if v.LCP != nil {
		parts = append(parts, m.gradeStyle(v.LCPGrade).Render(fmt.Sprintf("LCP %.0fms (%s)", *v.LCP, v.LCPGrade)))
	}
	if v.FCP != nil {
		parts = append(parts, m.gradeStyle(v.FCPGrade).Render(fmt.Sprintf("FCP %.0fms (%s)", *v.FCP, v.FCPGrade)))
	}
	if v.CLS != nil {
		parts = append(parts, m.gradeStyle(v.CLSGrade).Render(fmt.Sprintf("CLS %.3f (%s)", *v.CLS, v.CLSGrade)))
	}
	parts = append(parts, m.gradeStyle(v.OverallGrade).Render(fmt.Sprintf("score %.0f/100", v.OverallScore)))
	return "  " + strings.Join(parts, m.styles.Muted.Render("  │  "))
}

func (m Model) gradeStyle(g performance.Grade) lipgloss.Style {
	switch g {
	case performance.GradeExcellent, performance.GradeGood:
		return m.styles.Success
	case performance.GradeNeedsImprovement:
		return m.styles.Warning
	case performance.GradePoor:
		return m.styles.Error
	}
	return m.styles.Value
}

func (m Model) statusLine() string {
	if m.running {
		return "  " + m.spinner.View() + m.styles.Info.Render(" monitoring...")
	}
	if m.runErr != nil {
		return "  " + m.styles.Error.Render("run failed: "+m.runErr.Error())
	}
	return "  " + m.styles.Success.Render("run complete")
}

// Run drives the dashboard until the user quits.
func Run(sess *session.Session, done <-chan error) error {
	p := tea.NewProgram(New(sess, done), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
