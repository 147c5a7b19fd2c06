package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates full-text and JSONB GIN indexes. These enable
// keyword search over job descriptions and queries into stored analysis
// payloads.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_jobs_description_gin
		ON jobs USING gin(to_tsvector('english', description))`)
	if err != nil {
		return fmt.Errorf("failed to create jobs description GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_job_analysis_artifacts_payload_gin
		ON job_analysis_artifacts USING gin(payload jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create artifact payload GIN index: %w", err)
	}

	return nil
}
