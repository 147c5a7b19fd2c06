package models

// ModelClass groups LLM models by capability and cost.
type ModelClass string

// Model classes, cheapest first.
const (
	ModelClassLite     ModelClass = "lite"
	ModelClassStandard ModelClass = "standard"
	ModelClassPremium  ModelClass = "premium"
)

// ModelSpec describes one entry of the model catalog.
type ModelSpec struct {
	ID              string     `json:"id" yaml:"id"`
	Class           ModelClass `json:"tier" yaml:"tier"`
	RPMLimit        int        `json:"rpm_limit" yaml:"rpm_limit"`
	InputCostPer1K  float64    `json:"input_cost_per_1k" yaml:"input_cost_per_1k"`
	OutputCostPer1K float64    `json:"output_cost_per_1k" yaml:"output_cost_per_1k"`
	MaxOutputTokens int        `json:"max_output_tokens" yaml:"max_output_tokens"`
	// Priority orders the 503 fallback chain, ascending (1 = preferred).
	Priority int `json:"priority" yaml:"priority"`
}
