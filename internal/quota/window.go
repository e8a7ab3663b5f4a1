package quota

import "time"

// WindowKind selects which limit window a reset decision applies to.
type WindowKind string

const (
	WindowHourly  WindowKind = "hourly"
	WindowDaily   WindowKind = "daily"
	WindowMonthly WindowKind = "monthly"
)

// monthlyPeriod is the rolling billing period. The monthly window is a fixed
// 30-day period anchored to the counter's period start, NOT a calendar
// month, so counters stay aligned with plan billing cycles.
const monthlyPeriod = 30 * 24 * time.Hour

// ShouldReset reports whether the window's counter is due for a reset. It is
// a pure predicate; callers apply the reset transactionally.
//
// A zero lastReset means the record has never been reset and is due now.
func ShouldReset(kind WindowKind, lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	switch kind {
	case WindowHourly:
		return !lastReset.UTC().Truncate(time.Hour).Equal(now.UTC().Truncate(time.Hour))
	case WindowDaily:
		last := lastReset.UTC()
		cur := now.UTC()
		ly, lm, ld := last.Date()
		cy, cm, cd := cur.Date()
		return ly != cy || lm != cm || ld != cd
	case WindowMonthly:
		return now.Sub(lastReset) >= monthlyPeriod
	default:
		return false
	}
}
