package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jobsift/jobsift/pkg/models"
)

// Prior-context condensation limits. Prior analysis rides inside the next
// tier's prompt, so only the highest-signal findings are carried forward.
const (
	maxPriorSkills       = 5
	maxPriorRequirements = 3
)

// summarizeTier1 condenses a core-analysis artifact into one line: the
// authenticity verdict, classification, and the top skills by importance.
func summarizeTier1(a *models.Artifact) string {
	if a == nil {
		return ""
	}
	var parts []string

	if auth := a.Section("authenticity_check"); auth != nil {
		authentic, _ := auth["is_authentic"].(bool)
		if conf, ok := auth["confidence_score"].(float64); ok {
			parts = append(parts, fmt.Sprintf("authentic=%t (%.2f)", authentic, conf))
		} else {
			parts = append(parts, fmt.Sprintf("authentic=%t", authentic))
		}
	}

	if class := a.Section("classification"); class != nil {
		industry, _ := class["industry"].(string)
		seniority, _ := class["seniority_level"].(string)
		if industry != "" {
			parts = append(parts, "industry: "+industry)
		}
		if seniority != "" {
			parts = append(parts, "seniority: "+seniority)
		}
	}

	if skills := topSkills(a); len(skills) > 0 {
		parts = append(parts, "key skills: "+strings.Join(skills, ", "))
	}

	return strings.Join(parts, "; ")
}

// topSkills returns up to maxPriorSkills skill names sorted by importance.
func topSkills(a *models.Artifact) []string {
	structured := a.Section("structured_data")
	if structured == nil {
		return nil
	}
	reqs, _ := structured["skill_requirements"].(map[string]any)
	if reqs == nil {
		return nil
	}
	raw, _ := reqs["skills"].([]any)

	type rated struct {
		name   string
		rating float64
	}
	var skills []rated
	for _, s := range raw {
		skill, ok := s.(map[string]any)
		if !ok {
			continue
		}
		name, _ := skill["skill_name"].(string)
		if name == "" {
			continue
		}
		rating, _ := skill["importance_rating"].(float64)
		skills = append(skills, rated{name: name, rating: rating})
	}
	sort.SliceStable(skills, func(i, j int) bool {
		return skills[i].rating > skills[j].rating
	})
	if len(skills) > maxPriorSkills {
		skills = skills[:maxPriorSkills]
	}

	out := make([]string, len(skills))
	for i, s := range skills {
		out[i] = fmt.Sprintf("%s(%d)", s.name, int(s.rating))
	}
	return out
}

// summarizeTier2 condenses an enhanced-analysis artifact: the stress level,
// which red flags fired, and the leading implicit requirements.
func summarizeTier2(a *models.Artifact) string {
	if a == nil {
		return ""
	}
	var parts []string

	if stress := a.Section("stress_level_analysis"); stress != nil {
		if level, _ := stress["stress_level"].(string); level != "" {
			parts = append(parts, "stress: "+level)
		}
	}

	if flags := detectedRedFlags(a); len(flags) > 0 {
		parts = append(parts, "red flags: "+strings.Join(flags, ", "))
	}

	if reqs := leadingRequirements(a); len(reqs) > 0 {
		parts = append(parts, "implicit: "+strings.Join(reqs, "; "))
	}

	return strings.Join(parts, "; ")
}

// redFlagOrder keeps summaries deterministic across map iteration.
var redFlagOrder = []string{
	"unrealistic_expectations",
	"vague_responsibilities",
	"high_turnover_signals",
	"compensation_concerns",
}

func detectedRedFlags(a *models.Artifact) []string {
	section := a.Section("red_flags")
	if section == nil {
		return nil
	}
	var out []string
	for _, name := range redFlagOrder {
		flag, _ := section[name].(map[string]any)
		if flag == nil {
			continue
		}
		if detected, _ := flag["detected"].(bool); detected {
			out = append(out, name)
		}
	}
	return out
}

func leadingRequirements(a *models.Artifact) []string {
	section := a.Section("implicit_requirements")
	if section == nil {
		return nil
	}
	raw, _ := section["requirements"].([]any)
	var out []string
	for _, r := range raw {
		req, ok := r.(map[string]any)
		if !ok {
			continue
		}
		text, _ := req["requirement"].(string)
		if text == "" {
			continue
		}
		out = append(out, text)
		if len(out) == maxPriorRequirements {
			break
		}
	}
	return out
}

// joinSummaries concatenates non-empty tier summaries.
func joinSummaries(summaries ...string) string {
	var parts []string
	for _, s := range summaries {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}
