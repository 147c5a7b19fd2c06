package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jobsift/jobsift/pkg/seclog"
)

// DefaultBaseURL is the Gemini REST API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config holds client settings. Zero values are filled with defaults by
// NewClient.
type Config struct {
	APIKey  string
	BaseURL string

	MaxRetries     int           // attempts per Invoke, default 3
	BaseDelay      time.Duration // rate-limit/timeout backoff base, default 1s
	FallbackDelay  time.Duration // 503 model-switch wait, default 30s
	RequestTimeout time.Duration // per-HTTP-request, default 30s

	Temperature float64 // default 0.1
	TopK        int     // default 1
	TopP        float64 // default 0.8

	// FallbackModel is switched to once daily token usage crosses 75% of
	// the budget. Empty disables the switch.
	FallbackModel string
}

// Client dispatches prompts to the provider and owns the retry/fallback
// state machine. Requests are issued one at a time by the scheduler; the
// mutex protects the model-selection state read by the API layer.
type Client struct {
	cfg        Config
	httpClient *http.Client
	catalog    *Catalog
	ledger     *Ledger
	sink       seclog.Sink

	mu            sync.Mutex
	currentModel  string
	tried503      map[string]bool
	modelSwitches int

	// sleep is injectable so tests do not wait out real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client over catalog and ledger. The current model
// starts at the catalog's preferred entry.
func NewClient(cfg Config, catalog *Catalog, ledger *Ledger, sink seclog.Sink) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.TopK == 0 {
		cfg.TopK = 1
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.8
	}
	if sink == nil {
		sink = seclog.NopSink{}
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		catalog:    catalog,
		ledger:     ledger,
		sink:       sink,
		tried503:   make(map[string]bool),
		sleep:      sleepContext,
	}
	if first, ok := catalog.First(); ok {
		c.currentModel = first.ID
	}
	return c
}

// Catalog returns the model catalog backing this client.
func (c *Client) Catalog() *Catalog { return c.catalog }

// Ledger returns the usage ledger owned by this client.
func (c *Client) Ledger() *Ledger { return c.ledger }

// CurrentModel returns the model the next request will use.
func (c *Client) CurrentModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentModel
}

// SetCurrentModel assigns the model for subsequent requests, counting a
// switch when it changes. The tier engine calls this with the planner's
// selection before each batch.
func (c *Client) SetCurrentModel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" || id == c.currentModel {
		return
	}
	slog.Info("Switching model", "from", c.currentModel, "to", id)
	c.currentModel = id
	c.modelSwitches++
}

// ModelSwitches returns how many times the current model has changed.
func (c *Client) ModelSwitches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelSwitches
}

// Invoke sends prompt to the current model and runs the retry/fallback
// state machine until a response is produced, the attempt budget is
// exhausted, or a fatal error occurs.
//
// Per attempt:
//   - 200: clear the overload-tried set, record usage, return.
//   - 503: mark the model tried, switch to the next untried catalog model
//     after a 30s wait; once every model has been tried, wait
//     30s x (attempt+1) and retry on the same model.
//   - 429: exponential backoff, base x 2^attempt.
//   - timeout or other 5xx: flat base delay.
//   - auth or any other error: fail fast.
func (c *Client) Invoke(ctx context.Context, prompt string, maxOutputTokens int) (*RawResponse, error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		model := c.CurrentModel()
		if model == "" {
			return nil, fmt.Errorf("llm client has no model configured")
		}

		resp, err := c.doRequest(ctx, model, prompt, maxOutputTokens)
		if err == nil {
			c.onSuccess(model, resp)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			return nil, err
		}

		switch reqErr.Kind {
		case KindCapacity:
			if err := c.handleOverloaded(ctx, model, attempt); err != nil {
				return nil, err
			}

		case KindRateLimit:
			delay := c.cfg.BaseDelay * (1 << attempt)
			slog.Warn("Rate limited, backing off",
				"model", model, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case KindTimeout, KindTransient:
			slog.Warn("Transient request failure, retrying",
				"model", model, "attempt", attempt, "error", reqErr.Message)
			if err := c.sleep(ctx, c.cfg.BaseDelay); err != nil {
				return nil, err
			}

		default:
			// Auth and fatal errors are not retried.
			return nil, reqErr
		}
	}

	return nil, fmt.Errorf("llm request failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// handleOverloaded advances the 503 fallback chain.
func (c *Client) handleOverloaded(ctx context.Context, model string, attempt int) error {
	c.mu.Lock()
	c.tried503[model] = true
	tried := make(map[string]bool, len(c.tried503))
	for id := range c.tried503 {
		tried[id] = true
	}
	c.mu.Unlock()

	next, ok := c.catalog.NextUntried(tried)
	if ok {
		slog.Warn("Model overloaded, falling back",
			"overloaded", model, "next", next.ID, "wait", c.cfg.FallbackDelay)
		if err := c.sleep(ctx, c.cfg.FallbackDelay); err != nil {
			return err
		}
		c.SetCurrentModel(next.ID)
		return nil
	}

	delay := c.cfg.FallbackDelay * time.Duration(attempt+1)
	slog.Warn("All models overloaded, linear backoff",
		"model", model, "attempt", attempt, "delay", delay)
	return c.sleep(ctx, delay)
}

// onSuccess clears overload state, books usage, and applies the budget
// fallback switch.
func (c *Client) onSuccess(model string, resp *RawResponse) {
	c.mu.Lock()
	c.tried503 = make(map[string]bool)
	c.mu.Unlock()

	spec, _ := c.catalog.Get(model)
	c.ledger.RecordUsage(spec, resp.PromptTokens, resp.OutputTokens, resp.TokensUsed)

	if c.cfg.FallbackModel != "" && c.ledger.OverBudgetThreshold() {
		if c.CurrentModel() != c.cfg.FallbackModel {
			slog.Warn("Daily token budget threshold crossed, switching to fallback model",
				"fallback", c.cfg.FallbackModel)
			c.SetCurrentModel(c.cfg.FallbackModel)
		}
	}
}

// doRequest performs one generateContent call and classifies any failure.
func (c *Client) doRequest(ctx context.Context, model, prompt string, maxOutputTokens int) (*RawResponse, error) {
	body := generateRequest{
		Contents: []requestContent{{Parts: []contentPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.cfg.Temperature,
			TopK:             c.cfg.TopK,
			TopP:             c.cfg.TopP,
			MaxOutputTokens:  maxOutputTokens,
			ResponseMIMEType: "application/json",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &RequestError{Kind: KindFatal, Model: model, Message: err.Error()}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), model, c.cfg.APIKey)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Kind: KindFatal, Model: model, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &RequestError{Kind: KindTimeout, Model: model, Message: "request timed out"}
		}
		return nil, &RequestError{Kind: KindFatal, Model: model, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		sample, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		reqErr := &RequestError{
			StatusCode: httpResp.StatusCode,
			Model:      model,
			Message:    string(sample),
		}
		switch {
		case httpResp.StatusCode == http.StatusServiceUnavailable:
			reqErr.Kind = KindCapacity
		case httpResp.StatusCode == http.StatusTooManyRequests:
			reqErr.Kind = KindRateLimit
		case httpResp.StatusCode == http.StatusUnauthorized,
			httpResp.StatusCode == http.StatusForbidden:
			reqErr.Kind = KindAuth
		case httpResp.StatusCode >= 500:
			reqErr.Kind = KindTransient
		default:
			reqErr.Kind = KindFatal
		}
		return nil, reqErr
	}

	var decoded generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, &RequestError{Kind: KindFatal, Model: model,
			Message: fmt.Sprintf("decode response: %v", err)}
	}

	var text string
	if len(decoded.Candidates) > 0 && len(decoded.Candidates[0].Content.Parts) > 0 {
		text = decoded.Candidates[0].Content.Parts[0].Text
	}

	return &RawResponse{
		Text:         text,
		Model:        model,
		TokensUsed:   decoded.UsageMetadata.total(),
		PromptTokens: decoded.UsageMetadata.PromptTokenCount,
		OutputTokens: decoded.UsageMetadata.CandidatesTokenCount,
		Elapsed:      time.Since(start),
	}, nil
}

// RefreshCatalog updates the model catalog from the provider, keeping the
// cached catalog on failure.
func (c *Client) RefreshCatalog(ctx context.Context) {
	if err := c.catalog.Refresh(ctx, c.httpClient, c.cfg.BaseURL, c.cfg.APIKey); err != nil {
		slog.Warn("Model catalog refresh failed, keeping cached catalog", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
