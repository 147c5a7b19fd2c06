package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/jobsift/jobsift/pkg/models"
)

// Catalog is the ordered list of models available for dispatch and 503
// fallback. Read often, refreshed rarely; guarded by a read/write lock.
type Catalog struct {
	mu     sync.RWMutex
	models []models.ModelSpec
}

// DefaultCatalog returns the built-in model chain, priority ascending.
func DefaultCatalog() *Catalog {
	return NewCatalog([]models.ModelSpec{
		{
			ID: "gemini-2.0-flash", Class: models.ModelClassStandard,
			RPMLimit: 15, InputCostPer1K: 0.000100, OutputCostPer1K: 0.000400,
			MaxOutputTokens: 8192, Priority: 1,
		},
		{
			ID: "gemini-2.0-flash-lite", Class: models.ModelClassLite,
			RPMLimit: 30, InputCostPer1K: 0.000075, OutputCostPer1K: 0.000300,
			MaxOutputTokens: 8192, Priority: 2,
		},
		{
			ID: "gemini-1.5-flash", Class: models.ModelClassLite,
			RPMLimit: 15, InputCostPer1K: 0.000075, OutputCostPer1K: 0.000300,
			MaxOutputTokens: 8192, Priority: 3,
		},
		{
			ID: "gemini-1.5-pro", Class: models.ModelClassPremium,
			RPMLimit: 2, InputCostPer1K: 0.001250, OutputCostPer1K: 0.005000,
			MaxOutputTokens: 8192, Priority: 4,
		},
	})
}

// NewCatalog builds a catalog from specs, sorted by ascending priority.
func NewCatalog(specs []models.ModelSpec) *Catalog {
	sorted := make([]models.ModelSpec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Catalog{models: sorted}
}

// Models returns a copy of the catalog in priority order.
func (c *Catalog) Models() []models.ModelSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ModelSpec, len(c.models))
	copy(out, c.models)
	return out
}

// Get returns the spec for id.
func (c *Catalog) Get(id string) (models.ModelSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return models.ModelSpec{}, false
}

// First returns the preferred (lowest-priority-number) model.
func (c *Catalog) First() (models.ModelSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return models.ModelSpec{}, false
	}
	return c.models[0], true
}

// NextUntried walks the catalog in priority order and returns the first
// model not present in tried. Used by the 503 fallback chain.
func (c *Catalog) NextUntried(tried map[string]bool) (models.ModelSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if !tried[m.ID] {
			return m, true
		}
	}
	return models.ModelSpec{}, false
}

// Refresh rebuilds the catalog from the provider's model-list endpoint.
// Only Gemini-family models are admitted; priority follows listing order.
// On any failure the cached catalog is kept.
func (c *Catalog) Refresh(ctx context.Context, httpClient *http.Client, baseURL, apiKey string) error {
	url := fmt.Sprintf("%s/models?key=%s", strings.TrimRight(baseURL, "/"), apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build model-list request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model-list request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model-list request: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var listed modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return fmt.Errorf("decode model list: %w", err)
	}

	var specs []models.ModelSpec
	priority := 1
	for _, m := range listed.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		if !strings.HasPrefix(id, "gemini") {
			continue
		}
		spec := models.ModelSpec{
			ID:              id,
			Class:           classifyModel(id),
			RPMLimit:        15,
			MaxOutputTokens: 8192,
			Priority:        priority,
		}
		// Carry pricing over from the cached entry when the model is known.
		if cached, ok := c.Get(id); ok {
			spec.RPMLimit = cached.RPMLimit
			spec.InputCostPer1K = cached.InputCostPer1K
			spec.OutputCostPer1K = cached.OutputCostPer1K
			spec.MaxOutputTokens = cached.MaxOutputTokens
		}
		specs = append(specs, spec)
		priority++
	}

	if len(specs) == 0 {
		return fmt.Errorf("model list contained no gemini models")
	}

	c.mu.Lock()
	c.models = specs
	c.mu.Unlock()

	slog.Info("Model catalog refreshed", "models", len(specs))
	return nil
}

// classifyModel infers the capability class from the model name.
func classifyModel(id string) models.ModelClass {
	switch {
	case strings.Contains(id, "lite"):
		return models.ModelClassLite
	case strings.Contains(id, "pro"):
		return models.ModelClassPremium
	default:
		return models.ModelClassStandard
	}
}
