// Package browser drives a Chromium instance over the DevTools protocol
// and feeds its console, network, and page events into a telemetry session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when a page is requested before Start
// has connected to a browser.
var ErrNotConnected = errors.New("browser not connected")

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   `json:"debugger_url"`
	Bin                 string   `json:"bin"`
	LaunchFlags         []string `json:"launch_flags"`
	Headless            bool     `json:"headless"`
	ViewportWidth       int      `json:"viewport_width"`
	ViewportHeight      int      `json:"viewport_height"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms"`
	SettleDelayMs       int      `json:"settle_delay_ms"`
	EventThrottleMs     int      `json:"event_throttle_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		SettleDelayMs:       3000,
		EventThrottleMs:     100,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SettleDelay returns how long to let the page settle after load. Zero
// disables the wait.
func (c Config) SettleDelay() time.Duration {
	if c.SettleDelayMs <= 0 {
		return 0
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// Driver owns the Chrome instance. Pages are opened blank so event
// subscriptions can be wired before the first navigation.
type Driver struct {
	cfg        Config
	logger     *zap.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string // WebSocket URL for DevTools
}

// NewDriver creates a driver. A nil logger disables logging.
func NewDriver(cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg, logger: logger}
}

// Start connects to an existing Chrome or launches a new one.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if d.browser != nil {
		_, err := d.browser.Version()
		if err == nil {
			return nil // Browser is healthy
		}
		d.logger.Warn("stale browser connection, reconnecting", zap.Error(err))
		_ = d.browser.Close()
		d.browser = nil
		d.controlURL = ""
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" && d.cfg.Bin != "" {
		launch := launcher.New().Bin(d.cfg.Bin).Headless(d.cfg.Headless)
		for _, rawFlag := range d.cfg.LaunchFlags {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback without the extra flags
			fallback := launcher.New().Bin(d.cfg.Bin).Headless(d.cfg.Headless)
			if alt, altErr := fallback.Launch(); altErr == nil {
				controlURL = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		// Try default launcher
		url, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	d.browser = browser
	d.controlURL = controlURL
	d.logger.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

func (d *Driver) ensureStarted(ctx context.Context) error {
	d.mu.RLock()
	if d.browser != nil {
		d.mu.RUnlock()
		return nil
	}
	d.mu.RUnlock()
	return d.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (d *Driver) ControlURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.controlURL
}

// IsConnected returns whether the browser is connected.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.browser != nil
}

// Shutdown closes the browser. Pages opened through the driver die with it.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.controlURL = ""
	d.logger.Info("browser shut down")
	return err
}

// OpenPage creates a blank page in a fresh incognito context with the
// configured viewport. Wire Observe before navigating so the initial
// page load is captured.
func (d *Driver) OpenPage(ctx context.Context) (*rod.Page, error) {
	if err := d.ensureStarted(ctx); err != nil {
		return nil, err
	}
	d.mu.RLock()
	browser := d.browser
	d.mu.RUnlock()
	if browser == nil {
		return nil, ErrNotConnected
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.GetViewportWidth(),
		Height:            d.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		d.logger.Warn("failed to set viewport", zap.Error(err))
	}

	return page, nil
}

// Navigate loads the URL, waits for the load event, and then lets the
// page settle so late console and network activity is observed.
func (d *Driver) Navigate(ctx context.Context, page *rod.Page, url string) error {
	timeout := d.cfg.NavigationTimeout()
	if err := page.Context(ctx).Timeout(timeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.Context(ctx).Timeout(timeout).WaitLoad(); err != nil {
		d.logger.Warn("page load wait ended early", zap.String("url", url), zap.Error(err))
	}

	if settle := d.cfg.SettleDelay(); settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
		}
	}
	return nil
}
