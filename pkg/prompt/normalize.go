package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Normalization replaces the dynamic parts of a built prompt with fixed
// placeholders so that structurally identical prompts hash identically
// across executions. The replacement order matters and mirrors the order
// the placeholders appear in canonical templates.
//
// Every rule maps its own output to itself, so Normalize is idempotent.
var (
	securityTokenRe = regexp.MustCompile(`SEC_TOKEN_[A-Za-z0-9]{32}`)

	// ISO-8601 timestamps, with or without fractional seconds and zone.
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)

	uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

	jobCountRe = regexp.MustCompile(`Analyze these \d+ job postings`)

	// All consecutive per-job blocks collapse into a single placeholder,
	// so a 1-job prompt and a 25-job prompt normalize identically.
	jobBlockRe = regexp.MustCompile(`(?s)--- JOB .*--- END JOB \d+ ---`)

	// Leftover title/description lines outside a job block.
	titleLineRe       = regexp.MustCompile(`(?m)^TITLE:.*$`)
	descriptionLineRe = regexp.MustCompile(`(?m)^DESCRIPTION:.*$`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize returns the canonical form of a prompt: dynamic tokens replaced
// by fixed placeholders and whitespace collapsed.
func Normalize(text string) string {
	out := securityTokenRe.ReplaceAllString(text, "SEC_TOKEN_PLACEHOLDER")
	out = timestampRe.ReplaceAllString(out, "TIMESTAMP_PLACEHOLDER")
	out = uuidRe.ReplaceAllString(out, "UUID_PLACEHOLDER")
	out = jobCountRe.ReplaceAllString(out, "Analyze these N job postings")
	out = jobBlockRe.ReplaceAllString(out, "PLACEHOLDER")
	out = titleLineRe.ReplaceAllString(out, "TITLE: PLACEHOLDER")
	out = descriptionLineRe.ReplaceAllString(out, "DESCRIPTION: PLACEHOLDER")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Hash returns the hex SHA-256 of the normalized form of text. This is the
// structural identity used by the registry.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
