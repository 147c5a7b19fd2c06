// Package seclog records security-relevant pipeline events: prompt changes,
// security incidents, and response sanitization actions. Events are written
// to append-only JSONL files and mirrored best-effort into the
// security_detections table.
package seclog

import "time"

// Severity classifies how serious a detection is.
type Severity string

// Detection severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category selects which JSONL file an event is appended to.
type Category string

// Event categories. Each maps to its own file under the storage directory.
const (
	CategoryPromptChange Category = "prompt_changes"
	CategoryIncident     Category = "security_incidents"
	CategorySanitization Category = "response_sanitization"
)

// Event is a single security event. Timestamp is set by the sink when zero.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Category    Category       `json:"-"`
	Type        string         `json:"type"`
	Severity    Severity       `json:"severity"`
	Pattern     string         `json:"pattern,omitempty"`
	Sample      string         `json:"sample,omitempty"`
	ActionTaken string         `json:"action_taken,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Sink receives security events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events. Useful in tests and for components
// constructed without a configured sink.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(Event) {}
