// Package validator checks LLM batch responses before anything is persisted:
// JSON decoding, per-tier schema validation, content screens, the security
// token round-trip, and response sanitization.
package validator

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jobsift/jobsift/pkg/llm"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/prompt"
	"github.com/jobsift/jobsift/pkg/sanitize"
	"github.com/jobsift/jobsift/pkg/seclog"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var tierSchemaFiles = map[models.Tier]string{
	models.Tier1: "schemas/tier1.json",
	models.Tier2: "schemas/tier2.json",
	models.Tier3: "schemas/tier3.json",
}

// JobOutcome is one job's accepted analysis after sanitization.
type JobOutcome struct {
	JobID    string
	Payload  map[string]any
	Warnings []sanitize.Warning
}

// Result is the outcome of validating one batch response. A batch-level
// failure (unparseable body, schema violation, token mismatch) is returned
// as an error instead; Result only exists once per-job triage is possible.
type Result struct {
	Valid  []JobOutcome
	Failed map[string]string // job ID -> reason
}

// Service validates batch responses. Safe for concurrent use.
type Service struct {
	sink      seclog.Sink
	sanitizer *sanitize.Service
	schemas   map[models.Tier]*jsonschema.Schema
}

// NewService compiles the per-tier schemas. A nil sink drops events.
func NewService(sink seclog.Sink, sanitizer *sanitize.Service) (*Service, error) {
	if sink == nil {
		sink = seclog.NopSink{}
	}
	if sanitizer == nil {
		sanitizer = sanitize.NewService(sink)
	}

	compiler := jsonschema.NewCompiler()
	schemas := make(map[models.Tier]*jsonschema.Schema, len(tierSchemaFiles))
	for tier, file := range tierSchemaFiles {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		if err := compiler.AddResource(file, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", file, err)
		}
		schema, err := compiler.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		schemas[tier] = schema
	}

	return &Service{sink: sink, sanitizer: sanitizer, schemas: schemas}, nil
}

type envelope struct {
	SecurityToken   string           `json:"security_token"`
	BatchID         string           `json:"batch_id"`
	AnalysisResults []map[string]any `json:"analysis_results"`
}

// Validate runs the full pipeline over one batch response. jobs is the batch
// that was sent; any job without a matching, passing result is reported in
// Result.Failed. Batch-level failures return an error and nothing from the
// batch may be persisted.
func (s *Service) Validate(tier models.Tier, raw *llm.RawResponse, built *prompt.BuiltPrompt, jobs []models.Job) (*Result, error) {
	text := stripFences(raw.Text)
	if text == "" {
		return nil, fmt.Errorf("empty response from %s", raw.Model)
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := s.schemas[tier].Validate(doc); err != nil {
		return nil, fmt.Errorf("response failed schema validation: %w", err)
	}

	result := &Result{Failed: make(map[string]string)}
	byJob := make(map[string]map[string]any, len(env.AnalysisResults))
	for _, r := range env.AnalysisResults {
		jobID, _ := r["job_id"].(string)
		if jobID == "" {
			continue
		}

		if marker := screenStrings(r); marker != "" {
			s.recordIncident("response_injection_marker", seclog.SeverityHigh,
				marker, built, fmt.Sprintf("discarded result for job %s", jobID))
			result.Failed[jobID] = fmt.Sprintf("injection marker %q in response", marker)
			continue
		}
		if tier == models.Tier1 {
			if name := screenSkillNames(r); name != "" {
				s.recordIncident("suspicious_skill_name", seclog.SeverityHigh,
					name, built, fmt.Sprintf("discarded result for job %s", jobID))
				result.Failed[jobID] = fmt.Sprintf("suspicious skill name %q", name)
				continue
			}
		}
		byJob[jobID] = r
	}

	// Token round-trip. A mismatch means the model dropped or rewrote its
	// fenced instructions and the whole batch is untrusted.
	if env.SecurityToken != built.Token {
		s.recordIncident("token_mismatch", seclog.SeverityCritical,
			env.SecurityToken, built, "batch discarded")
		return nil, fmt.Errorf("security token mismatch: batch discarded")
	}

	for _, job := range jobs {
		r, ok := byJob[job.ID]
		if !ok {
			if _, screened := result.Failed[job.ID]; !screened {
				result.Failed[job.ID] = "missing from response"
			}
			continue
		}
		cleaned, warnings := s.sanitizer.SanitizeResult(job.ID, r)
		result.Valid = append(result.Valid, JobOutcome{
			JobID:    job.ID,
			Payload:  cleaned,
			Warnings: warnings,
		})
	}

	return result, nil
}

func (s *Service) recordIncident(incidentType string, severity seclog.Severity, sample string, built *prompt.BuiltPrompt, action string) {
	s.sink.Record(seclog.Event{
		Category:    seclog.CategoryIncident,
		Type:        incidentType,
		Severity:    severity,
		Sample:      sample,
		ActionTaken: action,
		Metadata: map[string]any{
			"template": built.TemplateName,
			"batch_id": built.BatchID,
		},
	})
}

// stripFences removes a markdown code fence wrapper some models emit despite
// the JSON response MIME type.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
