package scheduler

import (
	"time"

	"github.com/jobsift/jobsift/pkg/models"
)

// Window is a half-open [Start, End) interval in minutes from local
// midnight.
type Window struct {
	Start int
	End   int
}

// Contains reports whether the minute-of-day m falls inside the window.
func (w Window) Contains(m int) bool {
	return m >= w.Start && m < w.End
}

// Windows maps each tier to its nightly slot.
type Windows map[models.Tier]Window

// DefaultWindows is the overnight schedule: core analysis first, then
// enhanced, then strategic. Half-open intervals keep the boundaries
// unambiguous.
func DefaultWindows() Windows {
	return Windows{
		models.Tier1: {Start: 2 * 60, End: 3 * 60},            // 02:00-03:00
		models.Tier2: {Start: 3 * 60, End: 4*60 + 30},         // 03:00-04:30
		models.Tier3: {Start: 4*60 + 30, End: 6 * 60},         // 04:30-06:00
	}
}

// ActiveTier returns the tier whose window contains now (local time), or
// false outside every window.
func (ws Windows) ActiveTier(now time.Time) (models.Tier, bool) {
	minute := now.Hour()*60 + now.Minute()
	for _, tier := range []models.Tier{models.Tier1, models.Tier2, models.Tier3} {
		if w, ok := ws[tier]; ok && w.Contains(minute) {
			return tier, true
		}
	}
	return 0, false
}
