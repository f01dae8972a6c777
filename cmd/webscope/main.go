package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webscope/internal/config"
	"webscope/internal/console"
	"webscope/internal/logging"
)

// version is stamped by the release build.
var version = "0.1.0-dev"

var (
	// Global flags
	cfgPath string
	verbose bool

	// run flags
	watch       bool
	serveAPI    bool
	serveAddr   string
	headful     bool
	debuggerURL string
	timeout     time.Duration
	settle      time.Duration
	format      string
	output      string

	// Logger and configuration, built once per invocation
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "webscope",
	Short: "webscope - browser telemetry and analysis engine",
	Long: `webscope drives a Chromium instance against a URL and captures
everything the page emits: console messages, network requests,
performance metrics, and page errors.

The captured telemetry is classified, correlated, and graded, then
rendered as a markdown or JSON report. Run with --watch for a live
terminal dashboard, or --serve to expose the session as JSON over
HTTP while it is being collected.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd evaluates a single URL
var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Evaluate a URL and report what the page actually did",
	Long: `Launches Chrome (or attaches to a running one), navigates to the
URL, and monitors the page until it settles:
  1. Console: every message classified against the rule table
  2. Network: requests correlated with responses, failures, timing
  3. Performance: navigation timing, paint metrics, web vitals grading
  4. Errors: uncaught exceptions with stack traces

Examples:
  webscope run https://example.com
  webscope run --watch https://example.com
  webscope run --serve --format json --output report.json https://example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

// rulesCmd prints the console classification table
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the console classification rule table",
	Long: `Shows every built-in classification rule plus the custom rules from
the configuration file, in evaluation order. Each incoming console
message is matched against the whole table: the score is the highest
matching severity, the last match sets the category.`,
	RunE: showRules,
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the webscope version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("webscope %s\n", version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "webscope.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Run flags
	runCmd.Flags().BoolVar(&watch, "watch", false, "Show the live dashboard while monitoring")
	runCmd.Flags().BoolVar(&serveAPI, "serve", false, "Expose the session as JSON over HTTP while it runs")
	runCmd.Flags().StringVar(&serveAddr, "serve-addr", "", "Status server listen address (default from config)")
	runCmd.Flags().BoolVar(&headful, "headful", false, "Run Chrome with a visible window")
	runCmd.Flags().StringVar(&debuggerURL, "debugger-url", "", "Attach to a running Chrome via its DevTools URL")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Navigation timeout (default from config)")
	runCmd.Flags().DurationVar(&settle, "settle", 0, "How long to keep collecting after page load (default from config)")
	runCmd.Flags().StringVar(&format, "format", "", "Report format: markdown or json (default from config)")
	runCmd.Flags().StringVar(&output, "output", "", "Write the report to a file instead of stdout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// showRules prints the classification table in evaluation order.
func showRules(cmd *cobra.Command, args []string) error {
	fmt.Println("Console Classification Rules")
	fmt.Println("============================")
	fmt.Printf("%-22s %-22s %-8s %-6s %s\n", "NAME", "CATEGORY", "LEVEL", "ACTION", "PATTERN")
	for _, r := range console.DefaultRules() {
		printRule(r)
	}

	custom, err := cfg.Engine.CompileRules()
	if err != nil {
		return err
	}
	if len(custom) > 0 {
		fmt.Println()
		fmt.Printf("Custom rules (%s):\n", cfgPath)
		for _, r := range custom {
			printRule(r)
		}
	}

	fmt.Println()
	fmt.Println("Messages are matched top to bottom: the score is the highest")
	fmt.Println("matching severity, the last match sets the category.")
	return nil
}

func printRule(r console.Rule) {
	action := ""
	if r.ActionRequired {
		action = "yes"
	}
	fmt.Printf("%-22s %-22s %-8s %-6s %s\n", r.Name, r.Category, r.Severity, action, r.Pattern.String())
}
