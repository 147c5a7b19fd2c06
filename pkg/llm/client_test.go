package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsift/jobsift/pkg/models"
)

// fakeGemini serves scripted status codes per model, falling back to a
// canned success response once a model's script is exhausted.
type fakeGemini struct {
	mu       sync.Mutex
	scripts  map[string][]int
	requests []string
	delay    time.Duration
}

func (f *fakeGemini) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.delay > 0 {
			time.Sleep(f.delay)
		}

		// Path shape: /models/{id}:generateContent
		model := strings.TrimPrefix(r.URL.Path, "/models/")
		model = strings.TrimSuffix(model, ":generateContent")

		f.mu.Lock()
		f.requests = append(f.requests, model)
		code := http.StatusOK
		if script := f.scripts[model]; len(script) > 0 {
			code = script[0]
			f.scripts[model] = script[1:]
		}
		f.mu.Unlock()

		if code != http.StatusOK {
			http.Error(w, http.StatusText(code), code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{"content": {"parts": [{"text": "{\"ok\": true}"}]}}],
			"usageMetadata": {"promptTokenCount": 100, "candidatesTokenCount": 50, "totalTokenCount": 150}
		}`)
	}
}

func (f *fakeGemini) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func testChain() *Catalog {
	return NewCatalog([]models.ModelSpec{
		{ID: "model-a", Class: models.ModelClassStandard, OutputCostPer1K: 0.0004, Priority: 1},
		{ID: "model-b", Class: models.ModelClassLite, OutputCostPer1K: 0.0003, Priority: 2},
		{ID: "model-c", Class: models.ModelClassLite, OutputCostPer1K: 0.0003, Priority: 3},
	})
}

// newTestClient wires a client against the fake server with recorded,
// non-waiting sleeps.
func newTestClient(t *testing.T, server *httptest.Server, cfg Config, catalog *Catalog, tokenLimit int64) (*Client, *[]time.Duration) {
	t.Helper()
	cfg.APIKey = "test-key"
	cfg.BaseURL = server.URL

	ledger := NewLedger(filepath.Join(t.TempDir(), "usage.json"), tokenLimit, 0)
	client := NewClient(cfg, catalog, ledger, nil)

	var delays []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		delays = append(delays, d)
		return nil
	}
	return client, &delays
}

func TestInvokeSuccess(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, delays := newTestClient(t, server, Config{}, testChain(), 0)

	resp, err := client.Invoke(context.Background(), "analyze", 2180)
	require.NoError(t, err)

	assert.Equal(t, `{"ok": true}`, resp.Text)
	assert.Equal(t, "model-a", resp.Model)
	assert.Equal(t, 150, resp.TokensUsed)
	assert.Equal(t, 100, resp.PromptTokens)
	assert.Equal(t, 50, resp.OutputTokens)
	assert.Empty(t, *delays)

	snap := client.Ledger().Snapshot()
	assert.Equal(t, 1, snap.DailyRequests)
	assert.Equal(t, int64(150), snap.DailyTokens)
}

func TestInvokeOverloadedFallbackChain(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{
		"model-a": {http.StatusServiceUnavailable},
		"model-b": {http.StatusServiceUnavailable},
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, delays := newTestClient(t, server, Config{}, testChain(), 0)

	resp, err := client.Invoke(context.Background(), "analyze", 2180)
	require.NoError(t, err)

	assert.Equal(t, "model-c", resp.Model)
	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, fake.requested())
	assert.Equal(t, 2, client.ModelSwitches())
	// One fallback wait per overloaded model before switching.
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, *delays)
}

func TestInvokeAllModelsOverloadedLinearBackoff(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{
		"solo": {http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	catalog := NewCatalog([]models.ModelSpec{{ID: "solo", Priority: 1}})
	client, delays := newTestClient(t, server, Config{MaxRetries: 2}, catalog, 0)

	_, err := client.Invoke(context.Background(), "analyze", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")

	// With nothing left to fall back to, the wait grows linearly.
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, *delays)
}

func TestInvokeRateLimitExponentialBackoff(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{
		"model-a": {http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests},
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, delays := newTestClient(t, server, Config{BaseDelay: time.Second}, testChain(), 0)

	_, err := client.Invoke(context.Background(), "analyze", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)
}

func TestInvokeTransientServerErrorFlatDelay(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{
		"model-a": {http.StatusInternalServerError, http.StatusBadGateway},
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, delays := newTestClient(t, server, Config{BaseDelay: time.Second}, testChain(), 0)

	resp, err := client.Invoke(context.Background(), "analyze", 1000)
	require.NoError(t, err)

	assert.Equal(t, "model-a", resp.Model)
	assert.Equal(t, 0, client.ModelSwitches())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *delays)
}

func TestInvokeTimeoutRetries(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{}, delay: 200 * time.Millisecond}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, delays := newTestClient(t, server,
		Config{MaxRetries: 2, BaseDelay: time.Second, RequestTimeout: 50 * time.Millisecond},
		testChain(), 0)

	_, err := client.Invoke(context.Background(), "analyze", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *delays)
}

func TestInvokeAuthFailsFast(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{
		"model-a": {http.StatusUnauthorized},
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, delays := newTestClient(t, server, Config{}, testChain(), 0)

	_, err := client.Invoke(context.Background(), "analyze", 1000)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, KindAuth, reqErr.Kind)
	assert.Len(t, fake.requested(), 1)
	assert.Empty(t, *delays)
}

func TestInvokeBudgetFallbackSwitch(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	// The canned response books 150 tokens; a 180-token daily limit puts one
	// request over the 75% threshold.
	client, _ := newTestClient(t, server, Config{FallbackModel: "model-b"}, testChain(), 180)

	_, err := client.Invoke(context.Background(), "analyze", 1000)
	require.NoError(t, err)

	assert.Equal(t, "model-b", client.CurrentModel())
	assert.Equal(t, 1, client.ModelSwitches())
}

func TestInvokeCancelledContext(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, _ := newTestClient(t, server, Config{}, testChain(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Invoke(ctx, "analyze", 1000)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetCurrentModel(t *testing.T) {
	client := NewClient(Config{APIKey: "k"}, testChain(), NewLedger(filepath.Join(t.TempDir(), "u.json"), 0, 0), nil)

	assert.Equal(t, "model-a", client.CurrentModel())

	client.SetCurrentModel("model-b")
	assert.Equal(t, "model-b", client.CurrentModel())
	assert.Equal(t, 1, client.ModelSwitches())

	// No-ops do not count as switches.
	client.SetCurrentModel("model-b")
	client.SetCurrentModel("")
	assert.Equal(t, 1, client.ModelSwitches())
}
