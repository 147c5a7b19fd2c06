package config

import "errors"

// Sentinel errors for configuration validation.
var (
	ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")
	ErrBadWindow     = errors.New("invalid schedule window")
)
