package telemetry

import "time"

// EventType identifies the kind of browser signal an Event carries.
type EventType string

const (
	EventConsole     EventType = "console"
	EventNetwork     EventType = "network"
	EventPerformance EventType = "performance"
	EventError       EventType = "error"
	EventInteraction EventType = "interaction"
	EventNavigation  EventType = "navigation"

	// EventUnknown is assigned when a caller records an event without a
	// type. The log accepts everything; it is the sink of last resort.
	EventUnknown EventType = "unknown"
)

// Severity ranks an event for timeline and debugging views.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Event is the immutable envelope every raw browser signal is normalized
// into. An Event is created once per signal and never mutated after it is
// appended to the session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"event_type"`
	Source    string         `json:"source"`
	Severity  Severity       `json:"severity"`
	Data      map[string]any `json:"data,omitempty"`
}
