// Package cleanup provides data retention for security detections.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Defaults for retention policy.
const (
	DefaultRetentionDays = 90
	DefaultInterval      = 24 * time.Hour
)

// Service periodically removes security_detections rows past their
// retention window. The JSONL files stay untouched: they are the
// append-only primary record.
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	db            *sqlx.DB
	retentionDays int
	interval      time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. Non-positive arguments fall back to
// the defaults.
func NewService(db *sqlx.DB, retentionDays int, interval time.Duration) *Service {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		db:            db,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"detection_retention_days", s.retentionDays,
		"interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.pruneDetections(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneDetections(ctx)
		}
	}
}

func (s *Service) pruneDetections(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM security_detections WHERE detected_at < $1`, cutoff)
	if err != nil {
		slog.Error("Retention: detection cleanup failed", "error", err)
		return
	}
	if count, err := res.RowsAffected(); err == nil && count > 0 {
		slog.Info("Retention: removed old security detections", "count", count)
	}
}
