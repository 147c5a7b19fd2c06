package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsift/jobsift/pkg/llm"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/prompt"
	"github.com/jobsift/jobsift/pkg/validator"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu          sync.Mutex
	jobs        map[string]models.Job
	artifacts   map[string]models.Artifact      // jobID/tier
	completions map[string]models.TierCompletion // jobID/tier
	saveErr     error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:        make(map[string]models.Job),
		artifacts:   make(map[string]models.Artifact),
		completions: make(map[string]models.TierCompletion),
	}
}

func key(jobID string, tier models.Tier) string {
	return fmt.Sprintf("%s/%d", jobID, tier)
}

func (m *memStore) CreateJob(ctx context.Context, job models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) LoadJob(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return &job, nil
}

func (m *memStore) JobsNeedingTier(ctx context.Context, tier models.Tier, limit int) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Job
	for _, job := range m.jobs {
		if _, done := m.completions[key(job.ID, tier)]; !done {
			out = append(out, job)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) TierState(ctx context.Context, jobID string) (*models.TierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := &models.TierState{JobID: jobID, Tiers: make(map[models.Tier]models.TierCompletion)}
	for tier := models.Tier1; tier <= models.Tier3; tier++ {
		if c, ok := m.completions[key(jobID, tier)]; ok {
			state.Tiers[tier] = c
		}
	}
	return state, nil
}

func (m *memStore) LoadTierArtifact(ctx context.Context, jobID string, tier models.Tier) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[key(jobID, tier)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStore) SaveTierResult(ctx context.Context, artifact models.Artifact, completion models.TierCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.artifacts[key(artifact.JobID, artifact.Tier)] = artifact
	m.completions[key(artifact.JobID, artifact.Tier)] = completion
	return nil
}

func (m *memStore) ProcessingStatus(ctx context.Context) (*models.ProcessingStatus, error) {
	return &models.ProcessingStatus{}, nil
}

func (m *memStore) TierStats(ctx context.Context) ([]models.TierStats, error) {
	return nil, nil
}

// fakeLLM answers generateContent calls by echoing the security token it
// finds in the prompt, with one schema-valid result per requested job.
type fakeLLM struct {
	mu         sync.Mutex
	jobIDs     []string
	tier       models.Tier
	lastPrompt string
	forgeToken bool
}

func (f *fakeLLM) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Contents) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		text := req.Contents[0].Parts[0].Text

		f.mu.Lock()
		f.lastPrompt = text
		jobIDs := append([]string(nil), f.jobIDs...)
		tier := f.tier
		forge := f.forgeToken
		f.mu.Unlock()

		token := prompt.ExtractToken(text)
		if forge {
			token = prompt.NewSecurityToken()
		}

		results := make([]map[string]any, 0, len(jobIDs))
		for _, id := range jobIDs {
			results = append(results, resultForTier(tier, id))
		}
		body, _ := json.Marshal(map[string]any{
			"security_token":   token,
			"batch_id":         "batch-test",
			"analysis_results": results,
		})

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"candidates": [{"content": {"parts": [{"text": %s}]}}],
			"usageMetadata": {"totalTokenCount": 1500}
		}`, mustQuote(body))
	}
}

func (f *fakeLLM) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

func mustQuote(b []byte) string {
	quoted, _ := json.Marshal(string(b))
	return string(quoted)
}

func resultForTier(tier models.Tier, jobID string) map[string]any {
	switch tier {
	case models.Tier2:
		return map[string]any{
			"job_id":                jobID,
			"stress_level_analysis": map[string]any{"stress_level": "moderate"},
			"red_flags": map[string]any{
				"unrealistic_expectations": map[string]any{"detected": false},
				"vague_responsibilities":   map[string]any{"detected": false},
				"high_turnover_signals":    map[string]any{"detected": false},
				"compensation_concerns":    map[string]any{"detected": true},
			},
			"implicit_requirements": map[string]any{
				"requirements": []any{
					map[string]any{"requirement": "on-call rotation"},
				},
			},
		}
	default:
		return map[string]any{
			"job_id": jobID,
			"authenticity_check": map[string]any{
				"title_matches_role": true,
				"is_authentic":       true,
				"confidence_score":   0.9,
			},
			"classification": map[string]any{
				"industry":        "technology",
				"job_function":    "software engineering",
				"seniority_level": "senior",
			},
			"structured_data": map[string]any{
				"skill_requirements": map[string]any{
					"skills": []any{
						map[string]any{"skill_name": "Go", "importance_rating": 9},
					},
				},
				"ats_optimization": map[string]any{
					"primary_keywords": []any{
						map[string]any{"keyword": "golang", "keyword_category": "technical"},
					},
				},
			},
		}
	}
}

func newTestEngine(t *testing.T, serverURL string, st *memStore) *Engine {
	t.Helper()

	registry := prompt.NewRegistry(filepath.Join(t.TempDir(), "prompt_hashes.json"), nil)
	require.NoError(t, registry.RegisterBuiltins())

	ledger := llm.NewLedger(filepath.Join(t.TempDir(), "usage.json"), 0, 0)
	client := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: serverURL},
		llm.DefaultCatalog(), ledger, nil)

	val, err := validator.NewService(nil, nil)
	require.NoError(t, err)

	return NewEngine(st, client, registry, val, nil)
}

func seedJobs(t *testing.T, st *memStore, n int) []models.Job {
	t.Helper()
	jobs := make([]models.Job, 0, n)
	for i := 0; i < n; i++ {
		job := models.Job{
			ID:          fmt.Sprintf("11111111-2222-3333-4444-55555555555%d", i),
			Title:       "Backend Engineer",
			Company:     "Acme Corp",
			Description: "Build Go services.",
			CreatedAt:   time.Now(),
		}
		require.NoError(t, st.CreateJob(context.Background(), job))
		jobs = append(jobs, job)
	}
	return jobs
}

func TestProcessBatchTier1(t *testing.T) {
	st := newMemStore()
	jobs := seedJobs(t, st, 2)

	fake := &fakeLLM{jobIDs: []string{jobs[0].ID, jobs[1].ID}, tier: models.Tier1}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	engine := newTestEngine(t, server.URL, st)
	outcome, err := engine.ProcessBatch(context.Background(), models.Tier1, jobs, "gemini-2.0-flash")
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Successful)
	assert.Zero(t, outcome.Failed)
	assert.Equal(t, 1500, outcome.TokensUsed)
	assert.Equal(t, "gemini-2.0-flash", outcome.Model)

	artifact, err := st.LoadTierArtifact(context.Background(), jobs[0].ID, models.Tier1)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, "technology",
		artifact.Section("classification")["industry"])

	// Batch tokens split evenly across jobs.
	assert.Equal(t, 750, st.completions[key(jobs[0].ID, models.Tier1)].TokensUsed)
}

func TestProcessBatchTier2CarriesPriorContext(t *testing.T) {
	st := newMemStore()
	jobs := seedJobs(t, st, 1)

	require.NoError(t, st.SaveTierResult(context.Background(),
		models.Artifact{JobID: jobs[0].ID, Tier: models.Tier1, Payload: tier1Artifact().Payload},
		models.TierCompletion{Completed: true}))

	fake := &fakeLLM{jobIDs: []string{jobs[0].ID}, tier: models.Tier2}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	engine := newTestEngine(t, server.URL, st)
	outcome, err := engine.ProcessBatch(context.Background(), models.Tier2, jobs, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Successful)

	assert.Contains(t, fake.prompt(),
		"PRIOR ANALYSIS: authentic=true (0.95); industry: technology; seniority: senior; key skills: Go(9), PostgreSQL(8), Kubernetes(7)")
}

func TestProcessBatchTokenMismatchPersistsNothing(t *testing.T) {
	st := newMemStore()
	jobs := seedJobs(t, st, 2)

	fake := &fakeLLM{jobIDs: []string{jobs[0].ID, jobs[1].ID}, tier: models.Tier1, forgeToken: true}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	engine := newTestEngine(t, server.URL, st)
	_, err := engine.ProcessBatch(context.Background(), models.Tier1, jobs, "gemini-2.0-flash")
	require.ErrorContains(t, err, "security token mismatch")

	assert.Empty(t, st.artifacts)
	assert.Empty(t, st.completions)
}

func TestProcessBatchMissingJobCountedFailed(t *testing.T) {
	st := newMemStore()
	jobs := seedJobs(t, st, 2)

	// The model only answers for the first job.
	fake := &fakeLLM{jobIDs: []string{jobs[0].ID}, tier: models.Tier1}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	engine := newTestEngine(t, server.URL, st)
	outcome, err := engine.ProcessBatch(context.Background(), models.Tier1, jobs, "gemini-2.0-flash")
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Successful)
	assert.Equal(t, 1, outcome.Failed)
}

func TestProcessBatchPersistFailureCountsAsFailed(t *testing.T) {
	st := newMemStore()
	jobs := seedJobs(t, st, 1)
	st.saveErr = fmt.Errorf("disk full")

	fake := &fakeLLM{jobIDs: []string{jobs[0].ID}, tier: models.Tier1}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	engine := newTestEngine(t, server.URL, st)
	outcome, err := engine.ProcessBatch(context.Background(), models.Tier1, jobs, "gemini-2.0-flash")
	require.NoError(t, err)

	assert.Zero(t, outcome.Successful)
	assert.Equal(t, 1, outcome.Failed)
}

func TestProcessBatchEmpty(t *testing.T) {
	engine := newTestEngine(t, "http://unused", newMemStore())
	outcome, err := engine.ProcessBatch(context.Background(), models.Tier1, nil, "")
	require.NoError(t, err)
	assert.Zero(t, outcome.Successful)
	assert.Zero(t, outcome.Failed)
}

func TestPendingJobsDelegatesToStore(t *testing.T) {
	st := newMemStore()
	seedJobs(t, st, 3)

	engine := newTestEngine(t, "http://unused", st)
	jobs, err := engine.PendingJobs(context.Background(), models.Tier1, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
