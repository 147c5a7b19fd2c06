package validator

import "strings"

// Injection markers that indicate the model leaked or followed instructions
// planted in a job description. Matched case-insensitively against every
// string value in a job's result.
var injectionMarkers = []string{
	"i am an ai",
	"as an ai language model",
	"system prompt",
	"ignore previous",
	"ignore all previous",
	"disregard the above",
}

// Phrases that are never legitimate skill names. Ordinary technical terms
// (for example "distributed systems" or "penetration testing") are not
// screened; only phrasing that describes attacking the pipeline itself.
var suspiciousSkillPhrases = []string{
	"prompt injection",
	"bypass security",
	"jailbreak",
	"exfiltrate",
}

// screenStrings walks v and returns the first injection marker found in any
// string value, or "".
func screenStrings(v any) string {
	switch val := v.(type) {
	case string:
		lower := strings.ToLower(val)
		for _, marker := range injectionMarkers {
			if strings.Contains(lower, marker) {
				return marker
			}
		}
	case map[string]any:
		for _, child := range val {
			if hit := screenStrings(child); hit != "" {
				return hit
			}
		}
	case []any:
		for _, child := range val {
			if hit := screenStrings(child); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// screenSkillNames checks tier 1 skill names for pipeline-attack phrasing.
func screenSkillNames(result map[string]any) string {
	structured, ok := result["structured_data"].(map[string]any)
	if !ok {
		return ""
	}
	reqs, ok := structured["skill_requirements"].(map[string]any)
	if !ok {
		return ""
	}
	skills, ok := reqs["skills"].([]any)
	if !ok {
		return ""
	}
	for _, s := range skills {
		skill, ok := s.(map[string]any)
		if !ok {
			continue
		}
		name, _ := skill["skill_name"].(string)
		lower := strings.ToLower(name)
		for _, phrase := range suspiciousSkillPhrases {
			if strings.Contains(lower, phrase) {
				return name
			}
		}
	}
	return ""
}
