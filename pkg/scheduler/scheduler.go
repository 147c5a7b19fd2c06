// Package scheduler drives tier runs: the nightly window clock, batch
// splitting with cooldowns, and the continuous loop.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jobsift/jobsift/pkg/analyzer"
	"github.com/jobsift/jobsift/pkg/llm"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/planner"
)

// ErrBusy is returned when a run is requested while another is in flight.
// Analysis runs are single-flight across the process.
var ErrBusy = errors.New("an analysis run is already in progress")

// DefaultTick is the continuous-mode polling interval.
const DefaultTick = 300 * time.Second

// interBatchCooldown is the minimum pause between LLM batches in one run.
const interBatchCooldown = time.Second

// TierOptions carries operator overrides for one tier of a sequential run.
type TierOptions struct {
	MaxJobs       int
	ModelOverride string
}

// SequentialOptions holds per-tier overrides for RunFullSequentialBatch. The
// zero value runs every tier over all pending jobs with the current model.
type SequentialOptions struct {
	Tier1 TierOptions
	Tier2 TierOptions
	Tier3 TierOptions
}

func (o SequentialOptions) forTier(tier models.Tier) TierOptions {
	switch tier {
	case models.Tier1:
		return o.Tier1
	case models.Tier2:
		return o.Tier2
	default:
		return o.Tier3
	}
}

// Engine is the batch-processing dependency. *analyzer.Engine satisfies it;
// tests substitute fakes.
type Engine interface {
	PendingJobs(ctx context.Context, tier models.Tier, limit int) ([]models.Job, error)
	ProcessBatch(ctx context.Context, tier models.Tier, jobs []models.Job, modelOverride string) (*analyzer.BatchOutcome, error)
}

// Scheduler coordinates tier runs over the engine.
type Scheduler struct {
	engine  Engine
	client  *llm.Client
	windows Windows
	tick    time.Duration

	mu sync.Mutex // single-flight guard

	// now is injectable for window tests.
	now func() time.Time
}

// New builds a scheduler. Zero windows get DefaultWindows and a zero tick
// gets DefaultTick.
func New(engine Engine, client *llm.Client, windows Windows, tick time.Duration) *Scheduler {
	if windows == nil {
		windows = DefaultWindows()
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		engine:  engine,
		client:  client,
		windows: windows,
		tick:    tick,
		now:     time.Now,
	}
}

// ActiveTier returns the tier scheduled for the current local time.
func (s *Scheduler) ActiveTier() (models.Tier, bool) {
	return s.windows.ActiveTier(s.now())
}

// RunTierBatch runs one tier over up to maxJobs pending jobs (0 means all).
// Returns ErrBusy when another run holds the single-flight lock.
func (s *Scheduler) RunTierBatch(ctx context.Context, tier models.Tier, maxJobs int, modelOverride string) (*models.BatchStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()
	return s.runTier(ctx, tier, maxJobs, modelOverride)
}

// RunFullSequentialBatch runs tiers 1, 2, and 3 back to back under one
// single-flight lock, so tier N+1 picks up what tier N just completed.
// Per-tier limits and model overrides come from opts.
func (s *Scheduler) RunFullSequentialBatch(ctx context.Context, opts SequentialOptions) (*models.SequentialStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	start := s.now()
	stats := &models.SequentialStats{}
	for _, tier := range []models.Tier{models.Tier1, models.Tier2, models.Tier3} {
		opt := opts.forTier(tier)
		batch, err := s.runTier(ctx, tier, opt.MaxJobs, opt.ModelOverride)
		if err != nil {
			return stats, err
		}
		switch tier {
		case models.Tier1:
			stats.Tier1 = *batch
		case models.Tier2:
			stats.Tier2 = *batch
		case models.Tier3:
			stats.Tier3 = *batch
		}
		stats.TotalJobsProcessed += batch.Successful
		stats.TotalTokens += batch.TotalTokens
		if batch.Cancelled {
			break
		}
	}
	stats.DurationSeconds = s.now().Sub(start).Seconds()
	return stats, nil
}

// RunScheduledTier runs whichever tier the clock says is due. Outside every
// window it does nothing.
func (s *Scheduler) RunScheduledTier(ctx context.Context) (*models.BatchStats, error) {
	tier, ok := s.ActiveTier()
	if !ok {
		slog.Debug("No tier scheduled for current time")
		return nil, nil
	}
	return s.RunTierBatch(ctx, tier, 0, "")
}

// RunContinuous polls on the tick interval and runs the scheduled tier when
// one is due. Errors are logged and the loop continues; only context
// cancellation stops it.
func (s *Scheduler) RunContinuous(ctx context.Context) error {
	slog.Info("Continuous scheduling started", "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Continuous scheduling stopped")
			return ctx.Err()
		case <-ticker.C:
			stats, err := s.RunScheduledTier(ctx)
			if errors.Is(err, ErrBusy) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					slog.Info("Continuous scheduling stopped")
					return ctx.Err()
				}
				slog.Error("Scheduled tier run failed", "error", err)
				continue
			}
			if stats != nil && stats.TotalJobs > 0 {
				slog.Info("Scheduled tier run complete", "tier", int(stats.Tier),
					"successful", stats.Successful, "failed", stats.Failed)
			}
		}
	}
}

// runTier fetches pending jobs, splits them into planner-sized batches, and
// aggregates the outcomes. Callers hold the single-flight lock.
func (s *Scheduler) runTier(ctx context.Context, tier models.Tier, maxJobs int, modelOverride string) (*models.BatchStats, error) {
	start := s.now()
	stats := &models.BatchStats{Tier: tier}

	jobs, err := s.engine.PendingJobs(ctx, tier, maxJobs)
	if err != nil {
		return nil, err
	}
	stats.TotalJobs = len(jobs)
	if len(jobs) == 0 {
		slog.Info("No jobs pending", "tier", int(tier))
		return stats, nil
	}

	modelID := modelOverride
	if modelID == "" {
		modelID = s.client.CurrentModel()
	}
	spec, _ := s.client.Catalog().Get(modelID)

	usage := s.client.Ledger().Snapshot()
	plan := planner.PlanBatch(planner.BatchInputs{
		Tier:              tier,
		JobCount:          len(jobs),
		DailyRequestsUsed: usage.DailyRequests,
		DailyRequestLimit: usage.DailyRequestLimit,
	}, spec)
	slog.Info("Tier run starting", "tier", int(tier), "jobs", len(jobs),
		"batch_size", plan.Optimal, "batches", plan.BatchesNeeded,
		"rationale", plan.Rationale)

	for offset := 0; offset < len(jobs); offset += plan.Optimal {
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		if offset > 0 {
			select {
			case <-ctx.Done():
				stats.Cancelled = true
			case <-time.After(interBatchCooldown):
			}
			if stats.Cancelled {
				break
			}
		}

		end := offset + plan.Optimal
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[offset:end]

		outcome, err := s.engine.ProcessBatch(ctx, tier, batch, modelOverride)
		if err != nil {
			if ctx.Err() != nil {
				stats.Cancelled = true
				break
			}
			slog.Error("Batch failed", "tier", int(tier), "jobs", len(batch), "error", err)
			stats.Failed += len(batch)
			continue
		}

		stats.Successful += outcome.Successful
		stats.Failed += outcome.Failed
		stats.TotalTokens += outcome.TokensUsed
		stats.ResponseTimes = append(stats.ResponseTimes, outcome.ResponseTimeMS)
	}

	finalize(stats, s.now().Sub(start))
	slog.Info("Tier run finished", "tier", int(tier),
		"successful", stats.Successful, "failed", stats.Failed,
		"tokens", stats.TotalTokens, "cancelled", stats.Cancelled,
		"duration_s", stats.DurationSeconds)
	return stats, nil
}

// finalize derives the aggregate latency and throughput figures.
func finalize(stats *models.BatchStats, elapsed time.Duration) {
	stats.DurationSeconds = elapsed.Seconds()
	if len(stats.ResponseTimes) > 0 {
		var sum int64
		for _, ms := range stats.ResponseTimes {
			sum += ms
		}
		stats.AvgResponseMS = float64(sum) / float64(len(stats.ResponseTimes))
		stats.P95ResponseMS = percentile95(stats.ResponseTimes)
	}
	if stats.DurationSeconds > 0 {
		stats.JobsPerSecond = float64(stats.Successful) / stats.DurationSeconds
	}
}

// percentile95 returns the 95th-percentile value using nearest-rank.
func percentile95(times []int64) int64 {
	sorted := make([]int64, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := (95*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
