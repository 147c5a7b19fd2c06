package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsift/jobsift/pkg/models"
)

func TestDefaultCatalogOrder(t *testing.T) {
	catalog := DefaultCatalog()

	first, ok := catalog.First()
	require.True(t, ok)
	assert.Equal(t, "gemini-2.0-flash", first.ID)

	specs := catalog.Models()
	require.Len(t, specs, 4)
	for i := 1; i < len(specs); i++ {
		assert.LessOrEqual(t, specs[i-1].Priority, specs[i].Priority)
	}
}

func TestNextUntried(t *testing.T) {
	catalog := DefaultCatalog()

	next, ok := catalog.NextUntried(map[string]bool{"gemini-2.0-flash": true})
	require.True(t, ok)
	assert.Equal(t, "gemini-2.0-flash-lite", next.ID)

	all := map[string]bool{}
	for _, m := range catalog.Models() {
		all[m.ID] = true
	}
	_, ok = catalog.NextUntried(all)
	assert.False(t, ok)
}

func TestRefreshAdmitsGeminiModelsInListingOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"models": [
			{"name": "models/gemini-1.5-pro"},
			{"name": "models/text-embedding-004"},
			{"name": "models/gemini-2.0-flash"},
			{"name": "models/gemini-2.0-flash-lite"}
		]}`)
	}))
	defer server.Close()

	catalog := DefaultCatalog()
	require.NoError(t, catalog.Refresh(context.Background(), server.Client(), server.URL, "key"))

	specs := catalog.Models()
	require.Len(t, specs, 3)

	assert.Equal(t, "gemini-1.5-pro", specs[0].ID)
	assert.Equal(t, 1, specs[0].Priority)
	assert.Equal(t, models.ModelClassPremium, specs[0].Class)

	assert.Equal(t, "gemini-2.0-flash", specs[1].ID)
	assert.Equal(t, models.ModelClassStandard, specs[1].Class)
	// Pricing carries over from the cached entry.
	assert.Equal(t, 0.000100, specs[1].InputCostPer1K)

	assert.Equal(t, "gemini-2.0-flash-lite", specs[2].ID)
	assert.Equal(t, models.ModelClassLite, specs[2].Class)
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer server.Close()

	catalog := DefaultCatalog()
	before := catalog.Models()

	err := catalog.Refresh(context.Background(), server.Client(), server.URL, "key")
	assert.Error(t, err)
	assert.Equal(t, before, catalog.Models())
}

func TestRefreshRejectsEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models": [{"name": "models/text-embedding-004"}]}`)
	}))
	defer server.Close()

	catalog := DefaultCatalog()
	err := catalog.Refresh(context.Background(), server.Client(), server.URL, "key")
	assert.Error(t, err)
	assert.Len(t, catalog.Models(), 4)
}
