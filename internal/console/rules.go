package console

import "regexp"

// Level is the browser-reported console message level.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
	LevelLog     Level = "log"
	LevelAssert  Level = "assert"
)

// Score maps a level to the fixed severity scale used for ranking messages.
// The scale is not configurable: error and assert rank 5, warning 3, info
// and log 1, debug 0.
func (l Level) Score() int {
	switch l {
	case LevelError, LevelAssert:
		return 5
	case LevelWarning:
		return 3
	case LevelInfo, LevelLog:
		return 1
	default:
		return 0
	}
}

// CriticalScore is the severity score at which a message is surfaced as a
// critical issue.
const CriticalScore = 5

// Rule classifies console messages whose text matches its pattern. Rules
// are static configuration: the table is fixed when a Monitor is built and
// evaluated in order against every incoming message. Evaluation order is a
// contract, not an artifact. When several rules match one message the LAST
// matching rule decides the category, so more general rules belong earlier
// in the table and overriding rules later.
type Rule struct {
	Name           string
	Pattern        *regexp.Regexp
	Category       string
	Severity       Level
	Description    string
	ActionRequired bool
}

// DefaultRules returns the built-in classification table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:           "uncaught_exception",
			Pattern:        regexp.MustCompile(`(?i)Uncaught\s+(TypeError|ReferenceError|SyntaxError|Error)`),
			Category:       "javascript_error",
			Severity:       LevelError,
			Description:    "Uncaught JavaScript exception",
			ActionRequired: true,
		},
		{
			Name:           "network_error",
			Pattern:        regexp.MustCompile(`(?i)(Failed to load|net::ERR_|NetworkError|fetch.*failed)`),
			Category:       "network_error",
			Severity:       LevelError,
			Description:    "Network request failure",
			ActionRequired: true,
		},
		{
			Name:           "cors_error",
			Pattern:        regexp.MustCompile(`(?i)(CORS|Cross-Origin|Access-Control-Allow)`),
			Category:       "cors_error",
			Severity:       LevelError,
			Description:    "CORS policy violation",
			ActionRequired: true,
		},
		{
			Name:           "csp_violation",
			Pattern:        regexp.MustCompile(`(?i)Content Security Policy|CSP`),
			Category:       "security_error",
			Severity:       LevelError,
			Description:    "Content Security Policy violation",
			ActionRequired: true,
		},
		{
			Name:        "performance_warning",
			Pattern:     regexp.MustCompile(`(?i)(slow|performance|optimization|inefficient)`),
			Category:    "performance_warning",
			Severity:    LevelWarning,
			Description: "Performance-related warning",
		},
		{
			Name:        "memory_warning",
			Pattern:     regexp.MustCompile(`(?i)(memory|heap|leak|garbage)`),
			Category:    "memory_warning",
			Severity:    LevelWarning,
			Description: "Memory usage warning",
		},
		{
			Name:        "deprecation",
			Pattern:     regexp.MustCompile(`(?i)(deprecated|deprecation|will be removed)`),
			Category:    "deprecation_warning",
			Severity:    LevelWarning,
			Description: "Deprecated API usage",
		},
		{
			Name:        "react_warning",
			Pattern:     regexp.MustCompile(`(?i)React|Warning.*React`),
			Category:    "framework_warning",
			Severity:    LevelWarning,
			Description: "React framework warning",
		},
		{
			Name:        "vue_warning",
			Pattern:     regexp.MustCompile(`(?i)Vue warn|Vue\.js`),
			Category:    "framework_warning",
			Severity:    LevelWarning,
			Description: "Vue.js framework warning",
		},
		{
			Name:        "angular_warning",
			Pattern:     regexp.MustCompile(`(?i)Angular|ng-`),
			Category:    "framework_warning",
			Severity:    LevelWarning,
			Description: "Angular framework warning",
		},
		{
			Name:        "mixed_content",
			Pattern:     regexp.MustCompile(`(?i)Mixed Content|insecure.*secure`),
			Category:    "security_warning",
			Severity:    LevelWarning,
			Description: "Mixed content warning",
		},
		{
			Name:        "third_party_error",
			Pattern:     regexp.MustCompile(`(?i)(google|facebook|twitter|analytics|gtag|fbq)`),
			Category:    "third_party_error",
			Severity:    LevelWarning,
			Description: "Third-party service error",
		},
		{
			Name:        "debug_message",
			Pattern:     regexp.MustCompile(`(?i)(debug|dev|development|console\.log)`),
			Category:    "debug_message",
			Severity:    LevelDebug,
			Description: "Development/debug message",
		},
	}
}
