package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jobsift/jobsift/pkg/models"
)

// ErrNotFound is returned when a requested job does not exist.
var ErrNotFound = errors.New("not found")

// Postgres implements Store over a sqlx handle.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps db. The schema is managed by the database package's
// embedded migrations.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateJob(ctx context.Context, job models.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, company, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Title, job.Company, job.Description, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) LoadJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := p.db.GetContext(ctx, &job,
		`SELECT id, title, company, description, created_at FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}

func (p *Postgres) JobsNeedingTier(ctx context.Context, tier models.Tier, limit int) ([]models.Job, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier %d", tier)
	}

	var (
		query string
		args  []any
	)
	if tier == models.Tier1 {
		query = `
			SELECT j.id, j.title, j.company, j.description, j.created_at
			FROM jobs j
			LEFT JOIN job_analysis_tiers cur
				ON cur.job_id = j.id AND cur.tier = 1 AND cur.completed
			WHERE cur.job_id IS NULL
			ORDER BY j.created_at DESC`
	} else {
		query = `
			SELECT j.id, j.title, j.company, j.description, j.created_at
			FROM jobs j
			JOIN job_analysis_tiers prev
				ON prev.job_id = j.id AND prev.tier = $1 AND prev.completed
			LEFT JOIN job_analysis_tiers cur
				ON cur.job_id = j.id AND cur.tier = $2 AND cur.completed
			WHERE cur.job_id IS NULL
			ORDER BY j.created_at DESC`
		args = append(args, int(tier.Prev()), int(tier))
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	var jobs []models.Job
	if err := p.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("jobs needing tier %d: %w", tier, err)
	}
	return jobs, nil
}

type tierRow struct {
	Tier           int        `db:"tier"`
	Completed      bool       `db:"completed"`
	CompletedAt    *time.Time `db:"completed_at"`
	TokensUsed     int        `db:"tokens_used"`
	ModelUsed      string     `db:"model_used"`
	ResponseTimeMS int64      `db:"response_time_ms"`
}

func (p *Postgres) TierState(ctx context.Context, jobID string) (*models.TierState, error) {
	var rows []tierRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT tier, completed, completed_at, tokens_used, model_used, response_time_ms
		 FROM job_analysis_tiers WHERE job_id = $1 ORDER BY tier`, jobID)
	if err != nil {
		return nil, fmt.Errorf("tier state for %s: %w", jobID, err)
	}

	state := &models.TierState{
		JobID: jobID,
		Tiers: make(map[models.Tier]models.TierCompletion, len(rows)),
	}
	for _, r := range rows {
		state.Tiers[models.Tier(r.Tier)] = models.TierCompletion{
			Completed:      r.Completed,
			CompletedAt:    r.CompletedAt,
			TokensUsed:     r.TokensUsed,
			ModelUsed:      r.ModelUsed,
			ResponseTimeMS: r.ResponseTimeMS,
		}
	}
	return state, nil
}

func (p *Postgres) LoadTierArtifact(ctx context.Context, jobID string, tier models.Tier) (*models.Artifact, error) {
	var row struct {
		Payload   []byte    `db:"payload"`
		ModelUsed string    `db:"model_used"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := p.db.GetContext(ctx, &row,
		`SELECT payload, model_used, created_at
		 FROM job_analysis_artifacts WHERE job_id = $1 AND tier = $2`, jobID, int(tier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact %s tier %d: %w", jobID, tier, err)
	}

	artifact := &models.Artifact{
		JobID:     jobID,
		Tier:      tier,
		ModelUsed: row.ModelUsed,
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal(row.Payload, &artifact.Payload); err != nil {
		return nil, fmt.Errorf("decode artifact %s tier %d: %w", jobID, tier, err)
	}
	return artifact, nil
}

// SaveTierResult writes the artifact and completion row in one transaction so
// a completed tier always has its payload on record.
func (p *Postgres) SaveTierResult(ctx context.Context, artifact models.Artifact, completion models.TierCompletion) error {
	payload, err := json.Marshal(artifact.Payload)
	if err != nil {
		return fmt.Errorf("encode artifact %s tier %d: %w", artifact.JobID, artifact.Tier, err)
	}

	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	completedAt := completion.CompletedAt
	if completedAt == nil {
		completedAt = &createdAt
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tier result: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_analysis_artifacts (job_id, tier, payload, model_used, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id, tier) DO UPDATE
		 SET payload = EXCLUDED.payload,
		     model_used = EXCLUDED.model_used,
		     created_at = EXCLUDED.created_at`,
		artifact.JobID, int(artifact.Tier), payload, artifact.ModelUsed, createdAt)
	if err != nil {
		return fmt.Errorf("save artifact %s tier %d: %w", artifact.JobID, artifact.Tier, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_analysis_tiers
		     (job_id, tier, completed, completed_at, tokens_used, model_used, response_time_ms)
		 VALUES ($1, $2, TRUE, $3, $4, $5, $6)
		 ON CONFLICT (job_id, tier) DO UPDATE
		 SET completed = TRUE,
		     completed_at = EXCLUDED.completed_at,
		     tokens_used = EXCLUDED.tokens_used,
		     model_used = EXCLUDED.model_used,
		     response_time_ms = EXCLUDED.response_time_ms`,
		artifact.JobID, int(artifact.Tier), completedAt,
		completion.TokensUsed, completion.ModelUsed, completion.ResponseTimeMS)
	if err != nil {
		return fmt.Errorf("record completion %s tier %d: %w", artifact.JobID, artifact.Tier, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tier result %s tier %d: %w", artifact.JobID, artifact.Tier, err)
	}
	return nil
}

func (p *Postgres) ProcessingStatus(ctx context.Context) (*models.ProcessingStatus, error) {
	var status models.ProcessingStatus
	err := p.db.GetContext(ctx, &status, `
		SELECT
			COUNT(*) FILTER (WHERE t1.job_id IS NULL) AS pending_tier1,
			COUNT(*) FILTER (WHERE t1.job_id IS NOT NULL AND t2.job_id IS NULL) AS pending_tier2,
			COUNT(*) FILTER (WHERE t2.job_id IS NOT NULL AND t3.job_id IS NULL) AS pending_tier3,
			COUNT(*) FILTER (WHERE t3.job_id IS NOT NULL) AS fully_analyzed
		FROM jobs j
		LEFT JOIN job_analysis_tiers t1 ON t1.job_id = j.id AND t1.tier = 1 AND t1.completed
		LEFT JOIN job_analysis_tiers t2 ON t2.job_id = j.id AND t2.tier = 2 AND t2.completed
		LEFT JOIN job_analysis_tiers t3 ON t3.job_id = j.id AND t3.tier = 3 AND t3.completed`)
	if err != nil {
		return nil, fmt.Errorf("processing status: %w", err)
	}
	return &status, nil
}

func (p *Postgres) TierStats(ctx context.Context) ([]models.TierStats, error) {
	var rows []struct {
		Tier              int     `db:"tier"`
		JobsCompleted     int     `db:"jobs_completed"`
		TotalTokens       int64   `db:"total_tokens"`
		AvgTokensPerJob   float64 `db:"avg_tokens_per_job"`
		AvgResponseTimeMS float64 `db:"avg_response_time_ms"`
	}
	err := p.db.SelectContext(ctx, &rows, `
		SELECT tier,
		       COUNT(*) AS jobs_completed,
		       COALESCE(SUM(tokens_used), 0) AS total_tokens,
		       COALESCE(AVG(tokens_used), 0) AS avg_tokens_per_job,
		       COALESCE(AVG(response_time_ms), 0) AS avg_response_time_ms
		FROM job_analysis_tiers
		WHERE completed
		GROUP BY tier
		ORDER BY tier`)
	if err != nil {
		return nil, fmt.Errorf("tier stats: %w", err)
	}

	stats := make([]models.TierStats, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, models.TierStats{
			Tier:              models.Tier(r.Tier),
			JobsCompleted:     r.JobsCompleted,
			TotalTokens:       r.TotalTokens,
			AvgTokensPerJob:   r.AvgTokensPerJob,
			AvgResponseTimeMS: r.AvgResponseTimeMS,
		})
	}
	return stats, nil
}
