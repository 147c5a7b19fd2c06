// Package models defines the shared domain types for the analysis pipeline.
package models

import "time"

// Tier identifies one of the three sequential analysis tiers.
type Tier int

// Analysis tiers. Each tier depends on the previous one having completed.
const (
	Tier1 Tier = 1 // core: authenticity, classification, structured extraction
	Tier2 Tier = 2 // enhanced: stress level, red flags, implicit requirements
	Tier3 Tier = 3 // strategic: prestige analysis, cover letter insight
)

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

// Prev returns the tier that must complete before t. For Tier1 there is no
// predecessor and Prev returns 0.
func (t Tier) Prev() Tier {
	return t - 1
}

// Job is a scraped job posting. Jobs are created by the ingestion side of the
// system; the pipeline is read-only over them.
type Job struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Company     string    `db:"company" json:"company"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TierCompletion holds the completion flag and metadata for a single tier of
// a single job. Completion is append-forward: once set it is never cleared by
// the pipeline.
type TierCompletion struct {
	Completed      bool       `json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TokensUsed     int        `json:"tokens_used"`
	ModelUsed      string     `json:"model_used"`
	ResponseTimeMS int64      `json:"response_time_ms"`
}

// TierState tracks which analysis tiers have completed for a job.
// Invariant: Tiers[k] completed implies Tiers[k-1] completed.
type TierState struct {
	JobID string                  `json:"job_id"`
	Tiers map[Tier]TierCompletion `json:"tiers"`
}

// Completed reports whether tier t has completed for this job.
func (s *TierState) Completed(t Tier) bool {
	if s == nil || s.Tiers == nil {
		return false
	}
	return s.Tiers[t].Completed
}

// ProcessingStatus summarizes pipeline progress across all jobs.
type ProcessingStatus struct {
	PendingTier1  int `db:"pending_tier1" json:"pending_tier1"`
	PendingTier2  int `db:"pending_tier2" json:"pending_tier2"`
	PendingTier3  int `db:"pending_tier3" json:"pending_tier3"`
	FullyAnalyzed int `db:"fully_analyzed" json:"fully_analyzed"`
}
