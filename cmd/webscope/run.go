package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webscope/internal/browser"
	"webscope/internal/dashboard"
	"webscope/internal/report"
	"webscope/internal/session"
	"webscope/internal/webview"
)

// runEvaluate drives one full evaluation: launch, navigate, monitor,
// analyze, report.
func runEvaluate(cmd *cobra.Command, args []string) error {
	target, err := normalizeURL(args[0])
	if err != nil {
		return err
	}

	browserCfg := browserConfig()

	// The overall deadline covers navigation, the settle window, the
	// performance probe, and teardown.
	budget := browserCfg.NavigationTimeout() + browserCfg.SettleDelay() + 60*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	rules, err := cfg.Engine.CompileRules()
	if err != nil {
		return err
	}

	logger.Info("evaluating url", zap.String("url", target))

	driver := browser.NewDriver(browserCfg, logger)
	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer driver.Shutdown()

	manager := session.NewManager(session.Options{
		EventRetention: cfg.Engine.EventRetention,
		ConsoleRules:   rules,
		Logger:         logger,
	})
	sess := manager.Create(target)
	defer manager.CloseAll()

	page, err := driver.OpenPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	waitMonitor := driver.Observe(monitorCtx, page, sess)
	sampler := browser.NewMetricsSampler(page)

	if serveAPI {
		statusSrv := webview.NewServer(statusAddr(), sess, logger)
		if err := statusSrv.Start(); err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statusSrv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(os.Stderr, "status server on http://%s\n", statusSrv.Addr())
	}

	navigate := func() error {
		if err := driver.Navigate(ctx, page, target); err != nil {
			return err
		}
		sess.CapturePerformance(ctx, sampler)
		return nil
	}

	var navErr error
	if watch {
		done := make(chan error, 1)
		go func() { done <- navigate() }()
		if err := dashboard.Run(sess, done); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
	} else {
		navErr = navigate()
		if navErr != nil {
			logger.Error("evaluation incomplete", zap.Error(navErr))
		}
	}

	// Stop ingestion and flush what the page still had in flight. The
	// report covers whatever was captured, even after a failed run.
	stopMonitor()
	waitMonitor()
	sess.Close()

	if err := renderReport(sess.Export()); err != nil {
		return err
	}
	return navErr
}

// browserConfig maps the file configuration onto the adapter config and
// applies the command line overrides.
func browserConfig() browser.Config {
	bc := browser.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Bin:                 cfg.Browser.Bin,
		LaunchFlags:         cfg.Browser.LaunchFlags,
		Headless:            cfg.Browser.Headless,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: int(cfg.NavigationTimeout() / time.Millisecond),
		SettleDelayMs:       int(cfg.SettleDelay() / time.Millisecond),
		EventThrottleMs:     cfg.Browser.EventThrottleMs,
	}
	if headful {
		bc.Headless = false
	}
	if debuggerURL != "" {
		bc.DebuggerURL = debuggerURL
	}
	if timeout > 0 {
		bc.NavigationTimeoutMs = int(timeout / time.Millisecond)
	}
	if settle > 0 {
		bc.SettleDelayMs = int(settle / time.Millisecond)
	}
	return bc
}

func statusAddr() string {
	if serveAddr != "" {
		return serveAddr
	}
	return cfg.Serve.Addr
}

// normalizeURL fills in a missing scheme and rejects anything that is
// not plain http(s).
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", raw, err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}

// renderReport writes the report in the configured format and prints
// the verdict banner.
func renderReport(export session.Export) error {
	reportFormat := cfg.Report.Format
	if format != "" {
		reportFormat = format
	}
	dest := cfg.Report.Output
	if output != "" {
		dest = output
	}

	var body []byte
	switch reportFormat {
	case "json":
		var err error
		body, err = report.JSON(export)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	case "", "markdown":
		body = []byte(report.Markdown(export))
	default:
		return fmt.Errorf("unknown report format %q", reportFormat)
	}

	if dest != "" {
		if err := os.WriteFile(dest, body, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("report written to %s\n", dest)
		printVerdict(export)
		return nil
	}

	if reportFormat == "json" {
		fmt.Println(string(body))
		return nil
	}

	rendered := string(body)
	if renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	); err == nil {
		if out, err := renderer.Render(rendered); err == nil {
			rendered = out
		}
	}
	fmt.Print(rendered)
	printVerdict(export)
	return nil
}

// printVerdict prints the one-line colored verdict banner.
func printVerdict(export session.Export) {
	verdict := report.Verdict(export)

	style := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch verdict {
	case "Critical issues found":
		style = style.Background(lipgloss.Color("#e53935")).Foreground(lipgloss.Color("#ffffff"))
	case "Issues require attention":
		style = style.Background(lipgloss.Color("#FB8C00")).Foreground(lipgloss.Color("#ffffff"))
	case "Minor issues detected":
		style = style.Background(lipgloss.Color("#FFC107")).Foreground(lipgloss.Color("#000000"))
	default:
		style = style.Background(lipgloss.Color("#8BC34A")).Foreground(lipgloss.Color("#000000"))
	}

	sum := export.Summary
	stats := fmt.Sprintf(" %d console messages, %d requests, %.1fs",
		sum.Console.TotalMessages,
		sum.Network.TotalRequests,
		sum.SessionDuration,
	)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#7a8699"))
	fmt.Println(style.Render(verdict) + muted.Render(stats))
}
