// Package analyzer runs one tier of analysis over a batch of jobs: prior
// context assembly, prompt build and integrity check, planning, dispatch,
// validation, and atomic persistence.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobsift/jobsift/pkg/llm"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/planner"
	"github.com/jobsift/jobsift/pkg/prompt"
	"github.com/jobsift/jobsift/pkg/seclog"
	"github.com/jobsift/jobsift/pkg/store"
	"github.com/jobsift/jobsift/pkg/validator"
)

// BatchOutcome reports one batch dispatch.
type BatchOutcome struct {
	Successful     int
	Failed         int
	TokensUsed     int
	Model          string
	ResponseTimeMS int64
}

// Engine processes batches for a single process. Construction wires the
// persistence boundary, the LLM client, and the security layers together.
type Engine struct {
	store     store.Store
	client    *llm.Client
	registry  *prompt.Registry
	builder   *prompt.Builder
	validator *validator.Service
	sink      seclog.Sink
}

// NewEngine builds an engine. A nil sink drops security events.
func NewEngine(st store.Store, client *llm.Client, registry *prompt.Registry, val *validator.Service, sink seclog.Sink) *Engine {
	if sink == nil {
		sink = seclog.NopSink{}
	}
	return &Engine{
		store:     st,
		client:    client,
		registry:  registry,
		builder:   prompt.NewBuilder(),
		validator: val,
		sink:      sink,
	}
}

// PendingJobs returns up to limit jobs eligible for tier.
func (e *Engine) PendingJobs(ctx context.Context, tier models.Tier, limit int) ([]models.Job, error) {
	return e.store.JobsNeedingTier(ctx, tier, limit)
}

// ProcessBatch runs one batch through the full pipeline. modelOverride, when
// non-empty, bypasses planner model selection. Per-job failures are counted
// in the outcome; a batch-level failure returns an error and persists
// nothing.
func (e *Engine) ProcessBatch(ctx context.Context, tier models.Tier, jobs []models.Job, modelOverride string) (*BatchOutcome, error) {
	if len(jobs) == 0 {
		return &BatchOutcome{}, nil
	}

	prior, err := e.priorContext(ctx, tier, jobs)
	if err != nil {
		return nil, err
	}

	built, err := e.builder.Build(tier, jobs, prior)
	if err != nil {
		return nil, fmt.Errorf("build tier %d prompt: %w", tier, err)
	}

	canonical := func() (string, error) {
		template, err := prompt.CanonicalTemplate(built.TemplateName)
		if err != nil {
			return "", err
		}
		return e.builder.Render(template, prompt.RenderParams{
			Tier:      tier,
			Jobs:      jobs,
			Prior:     prior,
			Token:     built.Token,
			BatchID:   built.BatchID,
			Timestamp: time.Now().UTC(),
		}), nil
	}
	text, replaced := e.registry.ValidateAndHandle(built.TemplateName, built.Text, prompt.SourceAgent, canonical)
	if replaced {
		slog.Warn("Prompt restored from canonical before dispatch",
			"template", built.TemplateName, "batch_id", built.BatchID)
	}

	tokenPlan := planner.PlanTokens(len(jobs), tier)
	for _, rec := range tokenPlan.Recommendations {
		slog.Info("Token planner recommendation", "tier", int(tier), "note", rec)
	}

	model := modelOverride
	if model == "" {
		usage := e.client.Ledger().Snapshot()
		decision := planner.SelectModel(e.client.Catalog().Models(), planner.SelectionInputs{
			Tier:            tier,
			JobCount:        len(jobs),
			DailyTokensUsed: usage.DailyTokens,
			DailyTokenLimit: usage.DailyTokenLimit,
		})
		model = decision.Model.ID
		slog.Info("Model selected", "tier", int(tier), "model", model,
			"score", decision.Score)
	}
	e.client.SetCurrentModel(model)

	resp, err := e.client.Invoke(ctx, text, tokenPlan.MaxOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("tier %d batch %s: %w", tier, built.BatchID, err)
	}

	result, err := e.validator.Validate(tier, resp, built, jobs)
	if err != nil {
		return nil, fmt.Errorf("tier %d batch %s: %w", tier, built.BatchID, err)
	}

	outcome := &BatchOutcome{
		TokensUsed:     resp.TokensUsed,
		Model:          resp.Model,
		ResponseTimeMS: resp.Elapsed.Milliseconds(),
		Failed:         len(result.Failed),
	}
	for jobID, reason := range result.Failed {
		slog.Warn("Job failed validation", "job_id", jobID, "tier", int(tier), "reason", reason)
	}

	perJobTokens := resp.TokensUsed / len(jobs)
	now := time.Now().UTC()
	for _, jr := range result.Valid {
		artifact := models.Artifact{
			JobID:     jr.JobID,
			Tier:      tier,
			Payload:   jr.Payload,
			ModelUsed: resp.Model,
			CreatedAt: now,
		}
		completion := models.TierCompletion{
			Completed:      true,
			CompletedAt:    &now,
			TokensUsed:     perJobTokens,
			ModelUsed:      resp.Model,
			ResponseTimeMS: resp.Elapsed.Milliseconds(),
		}
		if err := e.store.SaveTierResult(ctx, artifact, completion); err != nil {
			slog.Error("Failed to persist tier result",
				"job_id", jr.JobID, "tier", int(tier), "error", err)
			outcome.Failed++
			continue
		}
		outcome.Successful++
	}

	slog.Info("Batch complete", "tier", int(tier), "batch_id", built.BatchID,
		"successful", outcome.Successful, "failed", outcome.Failed,
		"tokens", outcome.TokensUsed, "model", outcome.Model)
	return outcome, nil
}

// priorContext loads and condenses the previous tiers' artifacts for each
// job. Tier 1 has no prior context.
func (e *Engine) priorContext(ctx context.Context, tier models.Tier, jobs []models.Job) (map[string]string, error) {
	if tier == models.Tier1 {
		return nil, nil
	}

	prior := make(map[string]string, len(jobs))
	for _, job := range jobs {
		t1, err := e.store.LoadTierArtifact(ctx, job.ID, models.Tier1)
		if err != nil {
			return nil, fmt.Errorf("prior context for %s: %w", job.ID, err)
		}
		summary := summarizeTier1(t1)

		if tier == models.Tier3 {
			t2, err := e.store.LoadTierArtifact(ctx, job.ID, models.Tier2)
			if err != nil {
				return nil, fmt.Errorf("prior context for %s: %w", job.ID, err)
			}
			summary = joinSummaries(summary, summarizeTier2(t2))
		}
		prior[job.ID] = summary
	}
	return prior, nil
}
