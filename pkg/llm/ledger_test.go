package llm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsift/jobsift/pkg/models"
)

func testModelSpec() models.ModelSpec {
	return models.ModelSpec{ID: "gemini-2.0-flash", InputCostPer1K: 0.0001, OutputCostPer1K: 0.0004}
}

func TestLedgerRecordUsage(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "usage.json"), 1_000_000, 1_400)

	l.RecordUsage(testModelSpec(), 1000, 500, 1500)
	l.RecordUsage(testModelSpec(), 2000, 1000, 3000)

	snap := l.Snapshot()
	assert.Equal(t, 2, snap.DailyRequests)
	assert.Equal(t, 2, snap.MonthlyRequests)
	assert.Equal(t, int64(4500), snap.DailyTokens)
	assert.Equal(t, int64(4500), snap.MonthlyTokens)
	// 3000 prompt tokens at 0.0001/1k plus 1500 output tokens at 0.0004/1k.
	assert.InDelta(t, 0.0003+0.0006, snap.DailyCost, 1e-9)
	assert.Equal(t, int64(1_000_000), snap.DailyTokenLimit)
	assert.Equal(t, 1_400, snap.DailyRequestLimit)
}

func TestLedgerCombinedCountPricedAtOutputRate(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "usage.json"), 0, 0)

	l.RecordUsage(testModelSpec(), 0, 0, 2000)

	snap := l.Snapshot()
	assert.Equal(t, int64(2000), snap.DailyTokens)
	assert.InDelta(t, 2.0*0.0004, snap.DailyCost, 1e-9)
}

func TestLedgerDailyReset(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "usage.json"), 0, 0)

	day1 := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day1 }
	l.RecordUsage(testModelSpec(), 1000, 500, 1500)

	l.now = func() time.Time { return day1.Add(2 * time.Hour) }
	snap := l.Snapshot()
	assert.Zero(t, snap.DailyRequests)
	assert.Zero(t, snap.DailyTokens)
	assert.Zero(t, snap.DailyCost)
	// Same month: monthly totals survive the daily rollover.
	assert.Equal(t, 1, snap.MonthlyRequests)
	assert.Equal(t, int64(1500), snap.MonthlyTokens)
}

func TestLedgerMonthlyReset(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "usage.json"), 0, 0)

	l.now = func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) }
	l.RecordUsage(testModelSpec(), 1000, 500, 1500)

	l.now = func() time.Time { return time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC) }
	snap := l.Snapshot()
	assert.Zero(t, snap.DailyTokens)
	assert.Zero(t, snap.MonthlyTokens)
	assert.Zero(t, snap.MonthlyRequests)
}

func TestLedgerOverBudgetThreshold(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "usage.json"), 1000, 0)

	l.RecordUsage(testModelSpec(), 0, 0, 700)
	assert.False(t, l.OverBudgetThreshold())

	l.RecordUsage(testModelSpec(), 0, 0, 100)
	assert.True(t, l.OverBudgetThreshold())
}

func TestLedgerNoLimitNeverOverBudget(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "usage.json"), 0, 0)
	l.RecordUsage(testModelSpec(), 0, 0, 10_000_000)
	assert.False(t, l.OverBudgetThreshold())
}

func TestLedgerPersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")

	l1 := NewLedger(path, 1_000_000, 1_400)
	l1.RecordUsage(testModelSpec(), 1000, 500, 1500)

	l2 := NewLedger(path, 1_000_000, 1_400)
	snap := l2.Snapshot()
	require.Equal(t, 1, snap.DailyRequests)
	assert.Equal(t, int64(1500), snap.DailyTokens)
}
