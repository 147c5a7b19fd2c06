// Package config provides configuration for the analysis pipeline: API
// keys, model and budget settings, storage paths, and the tier schedule.
// Settings come from the environment (optionally a .env file) with an
// optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// WindowConfig is one tier's schedule slot in "HH:MM" local time.
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Minutes converts the window to minutes from midnight.
func (w WindowConfig) Minutes() (start, end int, err error) {
	start, err = parseClock(w.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start %q: %v", ErrBadWindow, w.Start, err)
	}
	end, err = parseClock(w.End)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end %q: %v", ErrBadWindow, w.End, err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("%w: %s-%s is empty", ErrBadWindow, w.Start, w.End)
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bad hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bad minute %q", parts[1])
	}
	return hour*60 + minute, nil
}

// Settings is the process configuration.
type Settings struct {
	// Secrets, environment-only.
	GeminiAPIKey  string `yaml:"-"`
	WebhookAPIKey string `yaml:"-"`

	GeminiBaseURL string `yaml:"gemini_base_url"`
	FallbackModel string `yaml:"fallback_model"`

	StorageDir string `yaml:"storage_dir"`
	ListenAddr string `yaml:"listen_addr"`

	DailyTokenLimit   int64 `yaml:"daily_token_limit"`
	DailyRequestLimit int   `yaml:"daily_request_limit"`

	ScheduleTickSeconds int                     `yaml:"schedule_tick_seconds"`
	Windows             map[string]WindowConfig `yaml:"windows"`

	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries"`
	Temperature           float64 `yaml:"temperature"`
}

// DefaultSettings returns the baseline before env and file overlays.
func DefaultSettings() *Settings {
	return &Settings{
		StorageDir:            "storage",
		ListenAddr:            ":8080",
		FallbackModel:         "gemini-2.0-flash-lite",
		DailyTokenLimit:       1_000_000,
		DailyRequestLimit:     1_400,
		ScheduleTickSeconds:   300,
		RequestTimeoutSeconds: 30,
		MaxRetries:            3,
		Temperature:           0.1,
	}
}

// Initialize loads settings: .env (when present), then the YAML file at
// path (when present), then environment variables, which win.
func Initialize(path string) (*Settings, error) {
	_ = godotenv.Load()

	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	s.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	s.WebhookAPIKey = os.Getenv("WEBHOOK_API_KEY")
	if s.WebhookAPIKey == "" {
		// Legacy deployments configured the control-API key under the
		// tracking service's name.
		s.WebhookAPIKey = os.Getenv("STEVE_GLEN_TRACKING_API_KEY")
	}

	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		s.GeminiBaseURL = v
	}
	if v := os.Getenv("FALLBACK_MODEL"); v != "" {
		s.FallbackModel = v
	}
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		s.StorageDir = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv("DAILY_TOKEN_LIMIT"); v != "" {
		limit, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DAILY_TOKEN_LIMIT: %w", err)
		}
		s.DailyTokenLimit = limit
	}
	if v := os.Getenv("DAILY_REQUEST_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DAILY_REQUEST_LIMIT: %w", err)
		}
		s.DailyRequestLimit = limit
	}
	if v := os.Getenv("SCHEDULE_TICK_SECONDS"); v != "" {
		tick, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULE_TICK_SECONDS: %w", err)
		}
		s.ScheduleTickSeconds = tick
	}

	return s, nil
}

// Validate checks settings needed to dispatch analysis.
func (s *Settings) Validate() error {
	if s.GeminiAPIKey == "" {
		return ErrMissingAPIKey
	}
	for name, w := range s.Windows {
		if _, _, err := w.Minutes(); err != nil {
			return fmt.Errorf("window %s: %w", name, err)
		}
	}
	return nil
}

// ScheduleTick returns the continuous-mode polling interval.
func (s *Settings) ScheduleTick() time.Duration {
	return time.Duration(s.ScheduleTickSeconds) * time.Second
}

// RequestTimeout returns the per-request LLM timeout.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}
