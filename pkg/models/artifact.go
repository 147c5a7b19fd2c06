package models

import "time"

// Artifact is the structured result of one tier of analysis for one job.
// The payload is stored whole for provenance; fan-out into normalized tables
// is handled by an external writer.
type Artifact struct {
	JobID     string         `json:"job_id"`
	Tier      Tier           `json:"tier"`
	Payload   map[string]any `json:"payload"`
	ModelUsed string         `json:"model_used"`
	CreatedAt time.Time      `json:"created_at"`
}

// Section returns a nested object from the payload, or nil when absent or
// not an object.
func (a *Artifact) Section(name string) map[string]any {
	if a == nil || a.Payload == nil {
		return nil
	}
	sec, _ := a.Payload[name].(map[string]any)
	return sec
}

// TierStats aggregates completed-tier metrics for the operator API.
type TierStats struct {
	Tier              Tier    `json:"tier"`
	JobsCompleted     int     `json:"jobs_completed"`
	TotalTokens       int64   `json:"total_tokens"`
	AvgTokensPerJob   float64 `json:"avg_tokens_per_job"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
}

// BatchStats aggregates the outcome of one tier batch run.
type BatchStats struct {
	Tier            Tier    `json:"tier"`
	TotalJobs       int     `json:"total_jobs"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	TotalTokens     int     `json:"total_tokens"`
	AvgResponseMS   float64 `json:"avg_response_time_ms"`
	P95ResponseMS   int64   `json:"p95_response_time_ms"`
	JobsPerSecond   float64 `json:"jobs_per_second"`
	DurationSeconds float64 `json:"duration_seconds"`
	Cancelled       bool    `json:"cancelled,omitempty"`

	// ResponseTimes carries the raw per-request timings used to derive the
	// aggregate figures above.
	ResponseTimes []int64 `json:"-"`
}

// SequentialStats aggregates a full tier 1→2→3 run.
type SequentialStats struct {
	Tier1              BatchStats `json:"tier1"`
	Tier2              BatchStats `json:"tier2"`
	Tier3              BatchStats `json:"tier3"`
	TotalJobsProcessed int        `json:"total_jobs_processed"`
	TotalTokens        int        `json:"total_tokens"`
	DurationSeconds    float64    `json:"duration_seconds"`
}
