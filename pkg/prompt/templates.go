// Package prompt owns the canonical analysis prompt templates, the hash
// registry protecting them, and the builder that renders them into
// per-batch prompts with embedded security tokens.
package prompt

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// Logical template names, one per analysis tier.
const (
	Tier1TemplateName = "tier1_core_prompt"
	Tier2TemplateName = "tier2_enhanced_prompt"
	Tier3TemplateName = "tier3_strategic_prompt"
)

// Region markers delimiting the template body inside a source file.
const (
	promptStartMarker = "PROMPT_START"
	promptEndMarker   = "PROMPT_END"
)

// CanonicalTemplate returns the authoritative template text for name,
// extracted from the embedded source between PROMPT_START and PROMPT_END
// markers. The embedded copy is the restore source when a runtime template
// has been tampered with.
func CanonicalTemplate(name string) (string, error) {
	raw, err := templatesFS.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("unknown prompt template %q: %w", name, err)
	}
	return ExtractTemplate(string(raw))
}

// ExtractTemplate returns the region of src between the PROMPT_START and
// PROMPT_END markers, with the marker lines themselves removed.
func ExtractTemplate(src string) (string, error) {
	start := strings.Index(src, promptStartMarker)
	if start < 0 {
		return "", fmt.Errorf("prompt source missing %s marker", promptStartMarker)
	}
	end := strings.LastIndex(src, promptEndMarker)
	if end < 0 || end <= start {
		return "", fmt.Errorf("prompt source missing %s marker", promptEndMarker)
	}
	body := src[start+len(promptStartMarker) : end]
	return strings.TrimSpace(body), nil
}

// TemplateNameForTier maps a tier number (1-3) to its template name.
func TemplateNameForTier(tier int) (string, error) {
	switch tier {
	case 1:
		return Tier1TemplateName, nil
	case 2:
		return Tier2TemplateName, nil
	case 3:
		return Tier3TemplateName, nil
	default:
		return "", fmt.Errorf("no prompt template for tier %d", tier)
	}
}
