package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jobsift/jobsift/pkg/models"
)

// BuiltPrompt is a rendered, token-saturated prompt ready for dispatch.
type BuiltPrompt struct {
	TemplateName string
	Text         string
	Token        string
	BatchID      string
	JobCount     int
}

// Builder renders canonical templates into per-batch prompts. Stateless:
// all state comes from parameters. Thread-safe.
type Builder struct{}

// NewBuilder returns a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders the template for tier with the given jobs. prior maps job ID
// to the condensed prior-tier context and is required for tiers 2 and 3
// (missing entries render as "none").
//
// The rendered prompt normalizes to the same hash as the canonical template:
// every dynamic value lands where the template carries a placeholder the
// normalizer knows about.
func (b *Builder) Build(tier models.Tier, jobs []models.Job, prior map[string]string) (*BuiltPrompt, error) {
	name, err := TemplateNameForTier(int(tier))
	if err != nil {
		return nil, err
	}
	template, err := CanonicalTemplate(name)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("prompt build for %s requires at least one job", name)
	}

	token := NewSecurityToken()
	batchID := uuid.New().String()

	text := b.Render(template, RenderParams{
		Tier:      tier,
		Jobs:      jobs,
		Prior:     prior,
		Token:     token,
		BatchID:   batchID,
		Timestamp: time.Now().UTC(),
	})

	return &BuiltPrompt{
		TemplateName: name,
		Text:         text,
		Token:        token,
		BatchID:      batchID,
		JobCount:     len(jobs),
	}, nil
}

// RenderParams carries the dynamic values substituted into a template.
type RenderParams struct {
	Tier      models.Tier
	Jobs      []models.Job
	Prior     map[string]string
	Token     string
	BatchID   string
	Timestamp time.Time
}

// Render substitutes params into template. Exposed so the registry's
// canonical getter can re-render the pristine template with the same
// dynamic values as a possibly tampered runtime prompt.
func (b *Builder) Render(template string, params RenderParams) string {
	// Job blocks first: the sample block contains placeholders of its own
	// that must not survive into the rendered prompt.
	blocks := b.renderJobBlocks(params.Tier, params.Jobs, params.Prior)
	out := jobBlockRe.ReplaceAllLiteralString(template, blocks)

	out = strings.ReplaceAll(out, "Analyze these N job postings",
		fmt.Sprintf("Analyze these %d job postings", len(params.Jobs)))
	out = strings.ReplaceAll(out, "SEC_TOKEN_PLACEHOLDER", params.Token)
	out = strings.ReplaceAll(out, "UUID_PLACEHOLDER", params.BatchID)
	out = strings.ReplaceAll(out, "TIMESTAMP_PLACEHOLDER",
		params.Timestamp.Format(time.RFC3339))
	return out
}

func (b *Builder) renderJobBlocks(tier models.Tier, jobs []models.Job, prior map[string]string) string {
	var sb strings.Builder
	for i, job := range jobs {
		n := i + 1
		fmt.Fprintf(&sb, "--- JOB %d (ID: %s) ---\n", n, job.ID)
		fmt.Fprintf(&sb, "TITLE: %s\n", singleLine(job.Title))
		fmt.Fprintf(&sb, "COMPANY: %s\n", singleLine(job.Company))
		if tier >= models.Tier2 {
			context := prior[job.ID]
			if context == "" {
				context = "none"
			}
			fmt.Fprintf(&sb, "PRIOR ANALYSIS: %s\n", singleLine(context))
		}
		fmt.Fprintf(&sb, "DESCRIPTION:\n%s\n", job.Description)
		fmt.Fprintf(&sb, "--- END JOB %d ---", n)
		if i < len(jobs)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// singleLine flattens header fields so a crafted title cannot open a fake
// prompt section on its own line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
