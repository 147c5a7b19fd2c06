package llm

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jobsift/jobsift/pkg/models"
)

// budgetFallbackThreshold is the share of the daily token budget after which
// the client switches to its configured fallback model.
const budgetFallbackThreshold = 0.75

// UsageSnapshot is a point-in-time copy of the ledger for planners and the
// operator API.
type UsageSnapshot struct {
	DailyRequests    int     `json:"daily_requests"`
	MonthlyRequests  int     `json:"monthly_requests"`
	DailyTokens      int64   `json:"daily_tokens"`
	MonthlyTokens    int64   `json:"monthly_tokens"`
	DailyCost        float64 `json:"daily_cost"`
	MonthlyCost      float64 `json:"monthly_cost"`
	RequestsToday    int     `json:"requests_today"`
	LastDailyReset   string  `json:"last_daily_reset"`
	LastMonthlyReset string  `json:"last_monthly_reset"`

	DailyTokenLimit   int64 `json:"daily_token_limit"`
	DailyRequestLimit int   `json:"daily_request_limit"`
}

// Ledger tracks request, token, and cost totals. It is the single mutable
// usage state in the process: only the LLM client writes it, everyone else
// reads snapshots. Persisted to storage/gemini_usage.json after each update.
type Ledger struct {
	path              string
	dailyTokenLimit   int64
	dailyRequestLimit int

	mu    sync.Mutex
	state UsageSnapshot
	// now is injectable for reset-boundary tests.
	now func() time.Time
}

// NewLedger loads the ledger from path, starting fresh when the file is
// missing or unreadable.
func NewLedger(path string, dailyTokenLimit int64, dailyRequestLimit int) *Ledger {
	l := &Ledger{
		path:              path,
		dailyTokenLimit:   dailyTokenLimit,
		dailyRequestLimit: dailyRequestLimit,
		now:               time.Now,
	}
	l.load()
	l.state.DailyTokenLimit = dailyTokenLimit
	l.state.DailyRequestLimit = dailyRequestLimit
	return l
}

func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to load usage ledger, starting fresh", "path", l.path, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &l.state); err != nil {
		slog.Warn("Corrupt usage ledger, starting fresh", "path", l.path, "error", err)
		l.state = UsageSnapshot{}
	}
}

// save persists the ledger. Callers hold the lock.
func (l *Ledger) save() {
	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal usage ledger", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		slog.Error("Failed to create usage ledger directory", "error", err)
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("Failed to write usage ledger", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		slog.Error("Failed to replace usage ledger", "path", l.path, "error", err)
	}
}

// rollResets zeroes daily/monthly counters when a boundary has passed.
// Callers hold the lock.
func (l *Ledger) rollResets() {
	now := l.now().UTC()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	if l.state.LastDailyReset != day {
		l.state.DailyRequests = 0
		l.state.DailyTokens = 0
		l.state.DailyCost = 0
		l.state.RequestsToday = 0
		l.state.LastDailyReset = day
	}
	if l.state.LastMonthlyReset != month {
		l.state.MonthlyRequests = 0
		l.state.MonthlyTokens = 0
		l.state.MonthlyCost = 0
		l.state.LastMonthlyReset = month
	}
}

// RecordUsage adds one successful request's token usage and cost to the
// running totals.
func (l *Ledger) RecordUsage(model models.ModelSpec, promptTokens, outputTokens, totalTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollResets()

	cost := float64(promptTokens)/1000*model.InputCostPer1K +
		float64(outputTokens)/1000*model.OutputCostPer1K
	if promptTokens == 0 && outputTokens == 0 {
		// Only the combined count was reported; price it all at output rates.
		cost = float64(totalTokens) / 1000 * model.OutputCostPer1K
	}

	l.state.DailyRequests++
	l.state.MonthlyRequests++
	l.state.RequestsToday++
	l.state.DailyTokens += int64(totalTokens)
	l.state.MonthlyTokens += int64(totalTokens)
	l.state.DailyCost += cost
	l.state.MonthlyCost += cost

	l.save()
}

// Snapshot returns a copy of the current totals after rolling any pending
// reset boundaries.
func (l *Ledger) Snapshot() UsageSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollResets()
	return l.state
}

// OverBudgetThreshold reports whether daily token usage has crossed the
// fallback threshold (75% of the daily limit).
func (l *Ledger) OverBudgetThreshold() bool {
	if l.dailyTokenLimit <= 0 {
		return false
	}
	snap := l.Snapshot()
	return float64(snap.DailyTokens) > budgetFallbackThreshold*float64(l.dailyTokenLimit)
}
