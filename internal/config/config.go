// Package config holds the file-backed configuration for the engine, the
// browser adapter, and the CLI surfaces.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"webscope/internal/console"
)

// Config holds all webscope configuration.
type Config struct {
	// Browser adapter settings
	Browser BrowserConfig `yaml:"browser"`

	// Telemetry engine settings
	Engine EngineConfig `yaml:"engine"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Report rendering
	Report ReportConfig `yaml:"report"`

	// Live status server
	Serve ServeConfig `yaml:"serve"`
}

// BrowserConfig configures how Chrome is reached and observed.
type BrowserConfig struct {
	// DebuggerURL attaches to a running Chrome; empty launches one.
	DebuggerURL       string   `yaml:"debugger_url"`
	Bin               string   `yaml:"bin"`
	LaunchFlags       []string `yaml:"launch_flags"`
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	// SettleDelay is how long to keep collecting after the page loaded.
	SettleDelay     string `yaml:"settle_delay"`
	EventThrottleMs int    `yaml:"event_throttle_ms"`
}

// EngineConfig configures the telemetry engine.
type EngineConfig struct {
	// EventRetention bounds the per-session event log.
	EventRetention int `yaml:"event_retention"`

	// ConsoleRules are appended after the built-in classification table.
	ConsoleRules []RuleConfig `yaml:"console_rules"`
}

// RuleConfig is one user-supplied console classification rule.
type RuleConfig struct {
	Name           string `yaml:"name"`
	Pattern        string `yaml:"pattern"`
	Category       string `yaml:"category"`
	Severity       string `yaml:"severity"` // error, warning, info, log, debug, assert
	Description    string `yaml:"description"`
	ActionRequired bool   `yaml:"action_required"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// ReportConfig configures report rendering.
type ReportConfig struct {
	Format string `yaml:"format"` // markdown, json
	Output string `yaml:"output"` // file path, empty for stdout
}

// ServeConfig configures the live status server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
			SettleDelay:       "3s",
			EventThrottleMs:   100,
		},

		Engine: EngineConfig{
			EventRetention: 1000,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "webscope.log",
		},

		Report: ReportConfig{
			Format: "markdown",
		},

		Serve: ServeConfig{
			Addr: "127.0.0.1:8081",
		},
	}
}

// Load loads configuration from a YAML file, merging it over the defaults.
// A missing file yields the defaults; a file that parses but fails
// validation is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks durations, log settings, and console rule patterns.
func (c *Config) Validate() error {
	if c.Browser.NavigationTimeout != "" {
		if _, err := time.ParseDuration(c.Browser.NavigationTimeout); err != nil {
			return fmt.Errorf("invalid navigation_timeout: %w", err)
		}
	}
	if c.Browser.SettleDelay != "" {
		if _, err := time.ParseDuration(c.Browser.SettleDelay); err != nil {
			return fmt.Errorf("invalid settle_delay: %w", err)
		}
	}
	if _, err := c.Engine.CompileRules(); err != nil {
		return err
	}
	return nil
}

// NavigationTimeout returns the navigation timeout as a duration.
func (c *Config) NavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SettleDelay returns the post-load settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	d, err := time.ParseDuration(c.Browser.SettleDelay)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// severityLevels maps the accepted severity strings to console levels.
var severityLevels = map[string]console.Level{
	"error":   console.LevelError,
	"warning": console.LevelWarning,
	"info":    console.LevelInfo,
	"log":     console.LevelLog,
	"debug":   console.LevelDebug,
	"assert":  console.LevelAssert,
}

// CompileRules compiles the configured console rules. An invalid pattern
// or an unknown severity is an error carrying the rule name.
func (e EngineConfig) CompileRules() ([]console.Rule, error) {
	rules := make([]console.Rule, 0, len(e.ConsoleRules))
	for _, rc := range e.ConsoleRules {
		pattern, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("console rule %q: invalid pattern: %w", rc.Name, err)
		}
		severity, ok := severityLevels[rc.Severity]
		if !ok {
			return nil, fmt.Errorf("console rule %q: unknown severity %q", rc.Name, rc.Severity)
		}
		rules = append(rules, console.Rule{
			Name:           rc.Name,
			Pattern:        pattern,
			Category:       rc.Category,
			Severity:       severity,
			Description:    rc.Description,
			ActionRequired: rc.ActionRequired,
		})
	}
	return rules, nil
}
