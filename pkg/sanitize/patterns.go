package sanitize

import "regexp"

// removed is substituted for stripped malicious content.
const removed = "[REMOVED]"

// maxFieldLength is the hard cap applied to every string field before any
// pattern work.
const maxFieldLength = 10000

// pattern is a compiled strip rule. Replacement must never re-introduce a
// match for any rule, otherwise sanitization would not be idempotent.
type pattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
	action      string
	reason      string
}

// sqlPatterns strip SQL-injection payloads from string fields.
var sqlPatterns = []pattern{
	{
		name:        "sql_union_select",
		regex:       regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
		replacement: removed,
		action:      "sql_injection_removed",
		reason:      "UNION SELECT statement",
	},
	{
		name:        "sql_drop_table",
		regex:       regexp.MustCompile(`(?i)\b(DROP|TRUNCATE)\s+(TABLE|DATABASE)\b`),
		replacement: removed,
		action:      "sql_injection_removed",
		reason:      "DROP/TRUNCATE statement",
	},
	{
		name:        "sql_dml",
		regex:       regexp.MustCompile(`(?i)\b(INSERT\s+INTO|DELETE\s+FROM|UPDATE\s+\w+\s+SET)\b`),
		replacement: removed,
		action:      "sql_injection_removed",
		reason:      "DML statement",
	},
	{
		name:        "sql_comment",
		regex:       regexp.MustCompile(`(--|/\*.*?\*/|;\s*--)`),
		replacement: removed,
		action:      "sql_injection_removed",
		reason:      "SQL comment sequence",
	},
	{
		name:        "sql_exec",
		regex:       regexp.MustCompile(`(?i)\b(EXEC(UTE)?\s*\(|xp_cmdshell)\b`),
		replacement: removed,
		action:      "sql_injection_removed",
		reason:      "procedure execution",
	},
}

// shellPatterns strip shell metacharacter abuse and command substitution.
// Deliberately narrow: bare punctuation in prose must survive.
var shellPatterns = []pattern{
	{
		name:        "shell_substitution",
		regex:       regexp.MustCompile("\\$\\([^)]*\\)|`[^`]*`"),
		replacement: removed,
		action:      "shell_injection_removed",
		reason:      "command substitution",
	},
	{
		name:        "shell_chained_command",
		regex:       regexp.MustCompile(`(?i)(;|\||&&)\s*(rm|wget|curl|nc|bash|sh|python|powershell|cmd)\b`),
		replacement: removed,
		action:      "shell_injection_removed",
		reason:      "chained shell command",
	},
}

// traversalPatterns strip path-traversal sequences.
var traversalPatterns = []pattern{
	{
		name:        "path_traversal",
		regex:       regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e)`),
		replacement: "",
		action:      "path_traversal_removed",
		reason:      "path traversal sequence",
	},
}

// jsSchemePattern strips javascript: URLs. Handled by removal rather than
// escaping so repeated sanitization is a fixed point.
var jsSchemePattern = pattern{
	name:        "javascript_scheme",
	regex:       regexp.MustCompile(`(?i)javascript\s*:`),
	replacement: removed,
	action:      "xss_removed",
	reason:      "javascript: scheme",
}

// xssEscapeGate decides whether a string gets HTML-escaped. Every alternative
// requires a literal '<', which escaping removes, so a second pass never
// re-escapes.
var xssEscapeGate = regexp.MustCompile(`(?i)<\s*script\b|<\s*iframe\b|<[a-z][^>]*\bon[a-z]+\s*=`)

// controlChars matches NUL, the C0 range, and DEL. Tab, LF, and CR are kept.
var controlChars = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

// httpURL finds http(s) URLs inside free text.
var httpURL = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
