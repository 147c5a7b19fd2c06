// Package sanitize scrubs untrusted LLM output before persistence. Every
// string field is screened for SQL, shell, XSS, path-traversal, and
// data-exfiltration payloads; each action produces a warning record.
//
// Sanitization is idempotent: running the sanitizer over its own output is a
// no-op. Tests rely on this property.
package sanitize

import (
	"fmt"
	"html"
	"log/slog"
	"unicode/utf8"

	"github.com/jobsift/jobsift/pkg/seclog"
)

// Warning records a single sanitization action on one field.
type Warning struct {
	FieldPath string `json:"field_path"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// Service sanitizes parsed LLM results. Stateless aside from the event sink;
// safe for concurrent use.
type Service struct {
	sink seclog.Sink
}

// NewService returns a sanitizer reporting to sink. A nil sink disables
// reporting.
func NewService(sink seclog.Sink) *Service {
	if sink == nil {
		sink = seclog.NopSink{}
	}
	return &Service{sink: sink}
}

// SanitizeResult sanitizes one job's analysis payload in place-copy fashion:
// the returned map is a cleaned deep copy and the input is not modified.
// Warnings are non-fatal; the caller persists the cleaned payload with the
// warnings attached.
func (s *Service) SanitizeResult(jobID string, payload map[string]any) (map[string]any, []Warning) {
	var warnings []Warning
	cleaned := s.sanitizeMap("", payload, &warnings)

	if len(warnings) > 0 {
		s.report(jobID, warnings)
	}
	return cleaned, warnings
}

func (s *Service) sanitizeMap(path string, m map[string]any, warnings *[]Warning) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		out[key] = s.sanitizeValue(childPath, key, value, warnings)
	}
	return out
}

func (s *Service) sanitizeValue(path, field string, value any, warnings *[]Warning) any {
	switch v := value.(type) {
	case string:
		return s.sanitizeString(path, field, v, warnings)
	case map[string]any:
		return s.sanitizeMap(path, v, warnings)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = s.sanitizeValue(fmt.Sprintf("%s[%d]", path, i), field, elem, warnings)
		}
		return out
	default:
		return v
	}
}

// sanitizeString applies the full rule chain to a single string field.
// field is the JSON key owning the string, used for URL policy.
func (s *Service) sanitizeString(path, field, value string, warnings *[]Warning) string {
	out := value

	if len(out) > maxFieldLength {
		out = truncate(out, maxFieldLength)
		*warnings = append(*warnings, Warning{
			FieldPath: path,
			Action:    "truncated",
			Reason:    fmt.Sprintf("exceeded %d characters", maxFieldLength),
		})
	}

	if controlChars.MatchString(out) {
		out = controlChars.ReplaceAllString(out, "")
		*warnings = append(*warnings, Warning{
			FieldPath: path,
			Action:    "control_chars_removed",
			Reason:    "control characters in field",
		})
	}

	for _, group := range [][]pattern{traversalPatterns, sqlPatterns, shellPatterns, {jsSchemePattern}} {
		for _, p := range group {
			if !p.regex.MatchString(out) {
				continue
			}
			out = p.regex.ReplaceAllString(out, p.replacement)
			*warnings = append(*warnings, Warning{
				FieldPath: path,
				Action:    p.action,
				Reason:    p.reason,
			})
		}
	}

	out = s.applyURLPolicy(path, field, out, warnings)

	if xssEscapeGate.MatchString(out) {
		out = html.EscapeString(out)
		*warnings = append(*warnings, Warning{
			FieldPath: path,
			Action:    "html_escaped",
			Reason:    "script/iframe/event-handler markup",
		})
		// Escaping expands entities and can push the string back over the
		// cap; re-applying it keeps the length bound and the fixed point.
		if len(out) > maxFieldLength {
			out = truncate(out, maxFieldLength)
			*warnings = append(*warnings, Warning{
				FieldPath: path,
				Action:    "truncated",
				Reason:    fmt.Sprintf("exceeded %d characters after escaping", maxFieldLength),
			})
		}
	}

	return out
}

// truncate caps s at limit bytes without splitting a UTF-8 rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// applyURLPolicy enforces the per-field URL rules: URL-prohibited fields lose
// any embedded URL; URL-allowed fields keep URLs that pass the suspicion
// screen. Fields in neither set are left alone.
func (s *Service) applyURLPolicy(path, field, value string, warnings *[]Warning) string {
	switch {
	case urlProhibitedFields[field]:
		if !httpURL.MatchString(value) {
			return value
		}
		*warnings = append(*warnings, Warning{
			FieldPath: path,
			Action:    "url_removed",
			Reason:    "URL in URL-prohibited field",
		})
		return httpURL.ReplaceAllString(value, removed)

	case urlAllowedFields[field]:
		return httpURL.ReplaceAllStringFunc(value, func(raw string) string {
			if !suspiciousURL(raw) {
				return raw
			}
			*warnings = append(*warnings, Warning{
				FieldPath: path,
				Action:    "suspicious_url_removed",
				Reason:    "URL host matches suspicious-host rules",
			})
			return removed
		})

	default:
		return value
	}
}

// report emits one sanitization event per job with per-category counters.
func (s *Service) report(jobID string, warnings []Warning) {
	counters := map[string]int{}
	for _, w := range warnings {
		switch w.Action {
		case "sql_injection_removed":
			counters["sql_injection_attempts"]++
		case "shell_injection_removed":
			counters["shell_injection_attempts"]++
		case "xss_removed", "html_escaped":
			counters["xss_attempts"]++
		case "path_traversal_removed":
			counters["path_traversal_attempts"]++
		case "url_removed", "suspicious_url_removed":
			counters["url_violations"]++
		case "truncated":
			counters["truncations"]++
		case "control_chars_removed":
			counters["control_char_removals"]++
		}
	}

	metadata := map[string]any{
		"job_id":   jobID,
		"warnings": warnings,
	}
	for name, count := range counters {
		metadata[name] = count
	}

	severity := seclog.SeverityLow
	if counters["sql_injection_attempts"] > 0 || counters["shell_injection_attempts"] > 0 {
		severity = seclog.SeverityMedium
	}

	slog.Warn("Sanitized LLM response fields",
		"job_id", jobID, "warning_count", len(warnings))

	s.sink.Record(seclog.Event{
		Category:    seclog.CategorySanitization,
		Type:        "response_sanitization",
		Severity:    severity,
		ActionTaken: "sanitized",
		Metadata:    metadata,
	})
}
