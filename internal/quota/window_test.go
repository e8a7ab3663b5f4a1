package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldResetHourly(t *testing.T) {
	base := time.Date(2025, time.March, 10, 14, 5, 0, 0, time.UTC)

	assert.False(t, ShouldReset(WindowHourly, base, base.Add(30*time.Minute)),
		"same hour bucket must not reset")
	assert.True(t, ShouldReset(WindowHourly, base, base.Add(time.Hour)),
		"next hour bucket must reset")
	// 14:59 -> 15:01 crosses the hour boundary even though less than an hour
	// elapsed.
	assert.True(t, ShouldReset(WindowHourly,
		time.Date(2025, time.March, 10, 14, 59, 0, 0, time.UTC),
		time.Date(2025, time.March, 10, 15, 1, 0, 0, time.UTC)))
}

func TestShouldResetDaily(t *testing.T) {
	base := time.Date(2025, time.March, 10, 23, 50, 0, 0, time.UTC)

	assert.False(t, ShouldReset(WindowDaily, base, base.Add(5*time.Minute)))
	assert.True(t, ShouldReset(WindowDaily, base, base.Add(15*time.Minute)),
		"crossing midnight must reset")
	assert.False(t, ShouldReset(WindowDaily,
		time.Date(2025, time.March, 10, 0, 0, 1, 0, time.UTC),
		time.Date(2025, time.March, 10, 23, 59, 59, 0, time.UTC)))
}

func TestShouldResetMonthlyIsRolling30Days(t *testing.T) {
	start := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

	// A calendar-month boundary alone does not reset the rolling period.
	assert.False(t, ShouldReset(WindowMonthly, start, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, ShouldReset(WindowMonthly, start, start.Add(30*24*time.Hour-time.Second)))
	assert.True(t, ShouldReset(WindowMonthly, start, start.Add(30*24*time.Hour)))
}

func TestShouldResetZeroTimestampIsDue(t *testing.T) {
	now := time.Now()
	for _, kind := range []WindowKind{WindowHourly, WindowDaily, WindowMonthly} {
		assert.True(t, ShouldReset(kind, time.Time{}, now), "kind %s", kind)
	}
}
