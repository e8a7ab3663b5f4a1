package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlanUnknown(t *testing.T) {
	_, err := GetPlan("platinum")
	assert.Error(t, err)
}

func TestCheckOperationLimitsAllows(t *testing.T) {
	res, err := CheckOperationLimits("free", 10, 5, 2, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.LimitType)
	// hourly headroom 30-2=28 is the tightest window
	assert.Equal(t, 28, res.Remaining)
}

func TestCheckOperationLimitsNarrowestViolatedWindowWins(t *testing.T) {
	// Mirror of the free plan shape with tiny numbers: monthly=300, daily=100,
	// hourly=30. Both hourly and daily violated -> hourly reported.
	res, err := CheckOperationLimits("free", 9, 100, 30, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "hourly", res.LimitType)
}

func TestCheckOperationLimitsMonthlyOnly(t *testing.T) {
	res, err := CheckOperationLimits("free", 300, 0, 0, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "monthly", res.LimitType)
	assert.Equal(t, 0, res.Remaining)
}

func TestCheckOperationLimitsUnlimitedPlan(t *testing.T) {
	res, err := CheckOperationLimits("enterprise", 1_000_000, 50_000, 9_000, 100)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckOperationLimitsFreeTierDailyScenario(t *testing.T) {
	// dailyUsed=99 of 100: one more op is allowed with zero headroom left...
	res, err := CheckOperationLimits("free", 99, 99, 0, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// ...and after the increment the next op is denied on the daily window.
	res, err = CheckOperationLimits("free", 100, 100, 1, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "daily", res.LimitType)
	assert.Equal(t, 0, res.Remaining)
}
