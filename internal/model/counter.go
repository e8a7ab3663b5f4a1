package model

import "time"

// CounterRecord tracks an identity's usage across the three limit windows.
// The *Used values only grow between resets; resets zero them exactly once
// per crossed boundary.
type CounterRecord struct {
	IdentityKey     string    `db:"identity_key" json:"identity_key"`
	MonthlyUsed     int       `db:"monthly_used" json:"monthly_used"`
	DailyUsed       int       `db:"daily_used" json:"daily_used"`
	HourlyUsed      int       `db:"hourly_used" json:"hourly_used"`
	PeriodStart     time.Time `db:"period_start" json:"period_start"`
	LastDailyReset  time.Time `db:"last_daily_reset" json:"last_daily_reset"`
	LastHourlyReset time.Time `db:"last_hourly_reset" json:"last_hourly_reset"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// UsageStats is the per-window usage snapshot returned to callers.
// A zero limit means the window is unlimited for the plan.
type UsageStats struct {
	PlanID       string `json:"plan_id"`
	MonthlyUsed  int    `json:"monthly_used"`
	MonthlyLimit int    `json:"monthly_limit"`
	DailyUsed    int    `json:"daily_used"`
	DailyLimit   int    `json:"daily_limit"`
	HourlyUsed   int    `json:"hourly_used"`
	HourlyLimit  int    `json:"hourly_limit"`
}
