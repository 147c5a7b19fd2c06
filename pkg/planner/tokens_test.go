package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsift/jobsift/pkg/models"
)

func TestPlanTokens(t *testing.T) {
	tests := []struct {
		name     string
		jobCount int
		tier     models.Tier
		want     int
		atLimit  bool
	}{
		{"tier1 two jobs", 2, models.Tier1, 2180, false},
		{"tier1 five jobs", 5, models.Tier1, 5300, false},
		{"tier2 eight jobs", 8, models.Tier2, 5860, false},
		{"tier3 single job", 1, models.Tier3, 820, false},
		{"tier1 ten jobs hits limit", 10, models.Tier1, ModelTokenLimit, true},
		{"tier2 fifteen jobs hits limit", 15, models.Tier2, ModelTokenLimit, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanTokens(tt.jobCount, tt.tier)
			assert.Equal(t, tt.want, plan.MaxOutputTokens)
			assert.Equal(t, tt.atLimit, plan.AtLimit)
		})
	}
}

func TestPlanTokensZeroJobs(t *testing.T) {
	plan := PlanTokens(0, models.Tier1)
	assert.Equal(t, jsonOverheadTokens, plan.MaxOutputTokens)
	assert.False(t, plan.AtLimit)
}

func TestPlanTokensAtLimitRecommendsSmallerBatch(t *testing.T) {
	plan := PlanTokens(12, models.Tier1)
	assert.True(t, plan.AtLimit)
	assert.InDelta(t, 1.0, plan.Utilization, 0.001)
	require.NotEmpty(t, plan.Recommendations)
	assert.Contains(t, plan.Recommendations[0], "reduce batch size")
	// Twelve jobs also breaks the ideal size of ten.
	assert.Len(t, plan.Recommendations, 2)
	assert.Contains(t, plan.Recommendations[1], "quality may degrade")
}

func TestPlanTokensLowUtilizationRecommendsBatching(t *testing.T) {
	plan := PlanTokens(2, models.Tier1)
	assert.Less(t, plan.Utilization, lowUtilizationThreshold)
	require.NotEmpty(t, plan.Recommendations)
	assert.Contains(t, plan.Recommendations[0], "batch more jobs")
}

func TestPlanTokensComfortableBatchNoRecommendations(t *testing.T) {
	plan := PlanTokens(8, models.Tier2)
	assert.False(t, plan.AtLimit)
	assert.Empty(t, plan.Recommendations)
}
