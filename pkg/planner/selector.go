package planner

import (
	"sort"

	"github.com/jobsift/jobsift/pkg/models"
)

// Scoring weights. Workload fit dominates; time pressure is a tiebreaker.
const (
	weightWorkload = 0.4
	weightBudget   = 0.3
	weightQuality  = 0.2
	weightTime     = 0.1
)

// Daily token budget thresholds for the budget sub-score.
const (
	budgetCritical = 0.90
	budgetHigh     = 0.80
	budgetRelaxed  = 0.40
)

// Quality thresholds: below upgradeBelow a stronger model is preferred;
// above downgradeAbove a cheaper model is acceptable.
const (
	upgradeBelow   = 0.75
	downgradeAbove = 0.95
)

// largeBatchThreshold is the batch size above which higher-capacity models
// get a workload bonus.
const largeBatchThreshold = 10

// SelectionInputs feed one model-selection decision.
type SelectionInputs struct {
	Tier            models.Tier
	JobCount        int
	DailyTokensUsed int64
	DailyTokenLimit int64
	// QualityScore is the recent response-quality score in [0,1], when one
	// has been measured.
	QualityScore  *float64
	TimeSensitive bool
	PeakHours     bool
}

// Decision is the outcome of scoring the catalog.
type Decision struct {
	Model     models.ModelSpec
	Score     float64
	SubScores map[string]float64
}

// SelectModel scores every catalog entry with a weighted sum of workload,
// budget, quality, and time sub-scores, and returns the highest scorer.
// Ties break toward lower catalog priority. An empty catalog returns a zero
// Decision.
func SelectModel(catalog []models.ModelSpec, in SelectionInputs) Decision {
	if len(catalog) == 0 {
		return Decision{}
	}

	candidates := make([]models.ModelSpec, len(catalog))
	copy(candidates, catalog)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	best := Decision{Score: -1}
	for _, model := range candidates {
		workload := workloadScore(model.Class, in)
		budget := budgetScore(model.Class, in)
		quality := qualityScore(model.Class, in)
		timing := timeScore(model.Class, in)

		total := weightWorkload*workload + weightBudget*budget +
			weightQuality*quality + weightTime*timing
		if total > best.Score {
			best = Decision{
				Model: model,
				Score: total,
				SubScores: map[string]float64{
					"workload": workload,
					"budget":   budget,
					"quality":  quality,
					"time":     timing,
				},
			}
		}
	}
	return best
}

// workloadScore prefers premium models for the strategic tier and lite
// models for the core tier; large batches push toward higher capacity.
func workloadScore(class models.ModelClass, in SelectionInputs) float64 {
	var score float64
	switch in.Tier {
	case models.Tier3:
		score = map[models.ModelClass]float64{
			models.ModelClassPremium:  1.0,
			models.ModelClassStandard: 0.6,
			models.ModelClassLite:     0.2,
		}[class]
	case models.Tier2:
		score = map[models.ModelClass]float64{
			models.ModelClassPremium:  0.7,
			models.ModelClassStandard: 1.0,
			models.ModelClassLite:     0.5,
		}[class]
	default:
		score = map[models.ModelClass]float64{
			models.ModelClassPremium:  0.4,
			models.ModelClassStandard: 0.8,
			models.ModelClassLite:     1.0,
		}[class]
	}

	if in.JobCount > largeBatchThreshold && class != models.ModelClassLite {
		score += 0.2
	}
	return clamp01(score)
}

// budgetScore pushes toward cheaper models as the daily token budget runs
// out, and permits premium only when usage is comfortably low.
func budgetScore(class models.ModelClass, in SelectionInputs) float64 {
	if in.DailyTokenLimit <= 0 {
		return 0.5
	}
	ratio := float64(in.DailyTokensUsed) / float64(in.DailyTokenLimit)

	switch {
	case ratio > budgetCritical:
		return map[models.ModelClass]float64{
			models.ModelClassLite:     1.0,
			models.ModelClassStandard: 0.2,
			models.ModelClassPremium:  0.0,
		}[class]
	case ratio > budgetHigh:
		return map[models.ModelClass]float64{
			models.ModelClassLite:     1.0,
			models.ModelClassStandard: 0.7,
			models.ModelClassPremium:  0.2,
		}[class]
	case ratio < budgetRelaxed:
		return map[models.ModelClass]float64{
			models.ModelClassLite:     0.7,
			models.ModelClassStandard: 0.9,
			models.ModelClassPremium:  1.0,
		}[class]
	default:
		return map[models.ModelClass]float64{
			models.ModelClassLite:     0.9,
			models.ModelClassStandard: 0.8,
			models.ModelClassPremium:  0.5,
		}[class]
	}
}

// qualityScore upgrades when recent quality is poor and allows a downgrade
// when it is excellent. Without a measurement the score is neutral.
func qualityScore(class models.ModelClass, in SelectionInputs) float64 {
	if in.QualityScore == nil {
		return 0.5
	}
	switch {
	case *in.QualityScore < upgradeBelow:
		return map[models.ModelClass]float64{
			models.ModelClassPremium:  1.0,
			models.ModelClassStandard: 0.6,
			models.ModelClassLite:     0.2,
		}[class]
	case *in.QualityScore > downgradeAbove:
		return map[models.ModelClass]float64{
			models.ModelClassLite:     1.0,
			models.ModelClassStandard: 0.8,
			models.ModelClassPremium:  0.5,
		}[class]
	default:
		return 0.7
	}
}

// timeScore biases toward fast, lite models under time pressure.
func timeScore(class models.ModelClass, in SelectionInputs) float64 {
	if !in.TimeSensitive && !in.PeakHours {
		return 0.5
	}
	return map[models.ModelClass]float64{
		models.ModelClassLite:     1.0,
		models.ModelClassStandard: 0.7,
		models.ModelClassPremium:  0.4,
	}[class]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
