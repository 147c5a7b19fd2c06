package planner

import (
	"fmt"
	"math"
	"time"

	"github.com/jobsift/jobsift/pkg/models"
)

// Per-batch timing assumptions used for the time estimate: one LLM request
// plus the inter-batch cooldown.
const (
	estimatedRequestTime = 30 * time.Second
	interBatchCooldown   = time.Second
)

// estimatedInputTokensPerJob approximates the prompt-side token cost of one
// job posting (title, company, description, instructions amortized).
const estimatedInputTokensPerJob = 500

// BatchInputs feed one batch-sizing decision.
type BatchInputs struct {
	Tier     models.Tier
	JobCount int
	// DailyRequestsUsed/Limit bound how many more requests may be issued
	// today. A zero limit means unbounded.
	DailyRequestsUsed int
	DailyRequestLimit int
	// TimeBudget optionally bounds the total run; zero means unbounded.
	TimeBudget time.Duration
}

// BatchPlan is the sizing decision for one tier run.
type BatchPlan struct {
	Optimal       int           `json:"optimal"`
	Min           int           `json:"min"`
	Max           int           `json:"max"`
	Rationale     string        `json:"rationale"`
	BatchesNeeded int           `json:"batches_needed"`
	EstimatedTime time.Duration `json:"estimated_time"`
	EstimatedCost float64       `json:"estimated_cost"`
}

// PlanBatch chooses the batch size as the minimum of the token-constrained,
// quality-constrained, and (when set) time-constrained sizes, raised when
// necessary to fit within the remaining daily request budget, and never
// above the token-constrained ceiling.
func PlanBatch(in BatchInputs, model models.ModelSpec) BatchPlan {
	if in.JobCount <= 0 {
		return BatchPlan{Rationale: "no jobs"}
	}

	profile := tierProfiles[in.Tier]
	perJob := int(math.Ceil(float64(profile.BaseTokensPerJob) * profile.SafetyMargin))

	limit := ModelTokenLimit
	if model.MaxOutputTokens > 0 && model.MaxOutputTokens < limit {
		limit = model.MaxOutputTokens
	}
	tokenConstrained := (limit - jsonOverheadTokens) / perJob
	if tokenConstrained < 1 {
		tokenConstrained = 1
	}

	qualityConstrained := profile.IdealBatchSize

	optimal := tokenConstrained
	rationale := "token budget"
	if qualityConstrained < optimal {
		optimal = qualityConstrained
		rationale = "tier quality ceiling"
	}

	if in.TimeBudget > 0 {
		perBatch := estimatedRequestTime + interBatchCooldown
		maxBatches := int(in.TimeBudget / perBatch)
		if maxBatches < 1 {
			maxBatches = 1
		}
		timeConstrained := int(math.Ceil(float64(in.JobCount) / float64(maxBatches)))
		if timeConstrained > optimal {
			// Larger batches are the only way to fit the window; token
			// ceiling still wins.
			if timeConstrained < tokenConstrained {
				optimal = timeConstrained
				rationale = "time budget"
			} else {
				optimal = tokenConstrained
				rationale = "time budget capped by tokens"
			}
		}
	}

	// Remaining request budget may force bigger batches.
	if in.DailyRequestLimit > 0 {
		remaining := in.DailyRequestLimit - in.DailyRequestsUsed
		if remaining < 1 {
			remaining = 1
		}
		rateConstrained := int(math.Ceil(float64(in.JobCount) / float64(remaining)))
		if rateConstrained > optimal {
			if rateConstrained > tokenConstrained {
				rateConstrained = tokenConstrained
			}
			optimal = rateConstrained
			rationale = "daily request budget"
		}
	}

	if optimal > in.JobCount {
		optimal = in.JobCount
	}

	batches := int(math.Ceil(float64(in.JobCount) / float64(optimal)))
	outputTokens := float64(in.JobCount*profile.BaseTokensPerJob) * profile.SafetyMargin
	inputTokens := float64(in.JobCount * estimatedInputTokensPerJob)
	cost := inputTokens/1000*model.InputCostPer1K + outputTokens/1000*model.OutputCostPer1K

	return BatchPlan{
		Optimal:       optimal,
		Min:           1,
		Max:           tokenConstrained,
		Rationale:     fmt.Sprintf("bound by %s", rationale),
		BatchesNeeded: batches,
		EstimatedTime: time.Duration(batches) * (estimatedRequestTime + interBatchCooldown),
		EstimatedCost: cost,
	}
}
