// Package store is the persistence boundary for jobs, tier completion state,
// and analysis artifacts.
package store

import (
	"context"

	"github.com/jobsift/jobsift/pkg/models"
)

// Store is the pipeline's view of persistent state. Implementations must be
// safe for concurrent use.
type Store interface {
	// CreateJob inserts a posting. Used by ingestion tooling and tests.
	CreateJob(ctx context.Context, job models.Job) error

	// LoadJob fetches one posting by ID.
	LoadJob(ctx context.Context, id string) (*models.Job, error)

	// JobsNeedingTier returns up to limit jobs eligible for tier: the
	// previous tier completed (or none required for tier 1) and the given
	// tier not yet completed, newest postings first. limit <= 0 means no
	// limit.
	JobsNeedingTier(ctx context.Context, tier models.Tier, limit int) ([]models.Job, error)

	// TierState returns the per-tier completion map for a job. Jobs with no
	// rows yet return an empty state.
	TierState(ctx context.Context, jobID string) (*models.TierState, error)

	// LoadTierArtifact fetches the stored analysis payload for one job and
	// tier, or nil when none exists.
	LoadTierArtifact(ctx context.Context, jobID string, tier models.Tier) (*models.Artifact, error)

	// SaveTierResult persists an artifact and marks its tier complete in a
	// single transaction. Either both land or neither does.
	SaveTierResult(ctx context.Context, artifact models.Artifact, completion models.TierCompletion) error

	// ProcessingStatus counts jobs pending each tier and fully analyzed.
	ProcessingStatus(ctx context.Context) (*models.ProcessingStatus, error)

	// TierStats aggregates completed-tier token and latency figures.
	TierStats(ctx context.Context) ([]models.TierStats, error)
}
