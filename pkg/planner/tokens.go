// Package planner decides token budgets, model selection, and batch sizing
// for tier analysis requests. Every function is pure: inputs in, decision
// out. The tier analyzer treats all outputs as advisory.
package planner

import (
	"fmt"
	"math"

	"github.com/jobsift/jobsift/pkg/models"
)

// ModelTokenLimit is the hard output-token ceiling of the provider models
// this pipeline targets.
const ModelTokenLimit = 8192

// jsonOverheadTokens covers the fixed JSON envelope around the per-job
// results (security_token, batch_id, array framing).
const jsonOverheadTokens = 100

// lowUtilizationThreshold triggers a batch-up recommendation.
const lowUtilizationThreshold = 0.60

// TierProfile holds the per-tier budgeting constants.
type TierProfile struct {
	BaseTokensPerJob int
	SafetyMargin     float64
	IdealBatchSize   int
}

var tierProfiles = map[models.Tier]TierProfile{
	models.Tier1: {BaseTokensPerJob: 800, SafetyMargin: 1.30, IdealBatchSize: 10},
	models.Tier2: {BaseTokensPerJob: 600, SafetyMargin: 1.20, IdealBatchSize: 15},
	models.Tier3: {BaseTokensPerJob: 600, SafetyMargin: 1.20, IdealBatchSize: 15},
}

// Profile returns the budgeting constants for tier.
func Profile(tier models.Tier) TierProfile {
	return tierProfiles[tier]
}

// TokenPlan is the output-token budget for one request.
type TokenPlan struct {
	MaxOutputTokens int      `json:"max_output_tokens"`
	AtLimit         bool     `json:"at_limit"`
	Utilization     float64  `json:"utilization"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// PlanTokens computes the max_output_tokens budget for jobCount jobs at the
// given tier: per-job base tokens times the tier safety margin, plus the
// JSON overhead, capped at the model limit.
func PlanTokens(jobCount int, tier models.Tier) TokenPlan {
	profile := tierProfiles[tier]

	if jobCount <= 0 {
		return TokenPlan{MaxOutputTokens: jsonOverheadTokens}
	}

	raw := int(math.Ceil(float64(jobCount)*float64(profile.BaseTokensPerJob)*profile.SafetyMargin)) + jsonOverheadTokens

	plan := TokenPlan{MaxOutputTokens: raw}
	if raw >= ModelTokenLimit {
		plan.MaxOutputTokens = ModelTokenLimit
		plan.AtLimit = true
		plan.Recommendations = append(plan.Recommendations,
			fmt.Sprintf("requested budget %d exceeds model limit %d; reduce batch size", raw, ModelTokenLimit))
	}
	plan.Utilization = float64(plan.MaxOutputTokens) / float64(ModelTokenLimit)

	if !plan.AtLimit && plan.Utilization < lowUtilizationThreshold {
		plan.Recommendations = append(plan.Recommendations,
			fmt.Sprintf("budget utilization %.0f%%; batch more jobs per request", plan.Utilization*100))
	}
	if jobCount > profile.IdealBatchSize {
		plan.Recommendations = append(plan.Recommendations,
			fmt.Sprintf("batch of %d exceeds tier %d ideal size %d; quality may degrade", jobCount, tier, profile.IdealBatchSize))
	}
	return plan
}
