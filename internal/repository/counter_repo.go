package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/quota"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository is the usage ledger. Rows are created lazily on first
// use and never deleted; all mutation happens through atomic statements in
// Postgres so concurrent requests for the same identity cannot lose updates.
type CounterRepository interface {
	// GetOrCreate fetches the counter row for an identity key, creating it
	// seeded at zero if absent. Any due window resets are applied inside a
	// transaction before the record is returned, so the subsequent limit
	// check in the same request sees post-reset values.
	GetOrCreate(ctx context.Context, identityKey string) (*model.CounterRecord, error)
	// Increment atomically adds ops to all three window counters.
	Increment(ctx context.Context, identityKey string, ops int) error
	// IncrementIfBelow adds ops only when every finite ceiling still holds
	// after the addition, and reports whether the increment was applied.
	// This is the strict conditional-increment path; zero ceilings are
	// unlimited.
	IncrementIfBelow(ctx context.Context, identityKey string, ops, monthlyCeil, dailyCeil, hourlyCeil int) (bool, error)
}

type counterRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewCounterRepo creates a new CounterRepository.
func NewCounterRepo(pool *pgxpool.Pool) CounterRepository {
	return &counterRepo{pool: pool, now: time.Now}
}

const counterColumns = `identity_key, monthly_used, daily_used, hourly_used,
	period_start, last_daily_reset, last_hourly_reset, created_at, updated_at`

func (r *counterRepo) GetOrCreate(ctx context.Context, identityKey string) (*model.CounterRecord, error) {
	now := r.now().UTC()

	const insertQ = `
		INSERT INTO usage_counters
			(identity_key, monthly_used, daily_used, hourly_used,
			 period_start, last_daily_reset, last_hourly_reset, created_at, updated_at)
		VALUES ($1, 0, 0, 0, $2, $2, $2, $2, $2)
		ON CONFLICT (identity_key) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insertQ, identityKey, now); err != nil {
		return nil, fmt.Errorf("seeding counter for %s: %w", identityKey, err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for counter %s: %w", identityKey, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const selectQ = `
		SELECT ` + counterColumns + `
		FROM usage_counters
		WHERE identity_key = $1
		FOR UPDATE
	`
	rec, err := scanCounter(tx.QueryRow(ctx, selectQ, identityKey))
	if err != nil {
		return nil, fmt.Errorf("locking counter for %s: %w", identityKey, err)
	}

	if applyDueResets(rec, now) {
		const resetQ = `
			UPDATE usage_counters
			SET monthly_used = $2, daily_used = $3, hourly_used = $4,
			    period_start = $5, last_daily_reset = $6, last_hourly_reset = $7,
			    updated_at = $8
			WHERE identity_key = $1
		`
		if _, err := tx.Exec(ctx, resetQ, identityKey,
			rec.MonthlyUsed, rec.DailyUsed, rec.HourlyUsed,
			rec.PeriodStart, rec.LastDailyReset, rec.LastHourlyReset, now); err != nil {
			return nil, fmt.Errorf("applying window resets for %s: %w", identityKey, err)
		}
		rec.UpdatedAt = now
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing counter resets for %s: %w", identityKey, err)
	}
	return rec, nil
}

// applyDueResets zeros the counters whose window boundary has been crossed
// and stamps the new reset times. Returns true when anything changed.
func applyDueResets(rec *model.CounterRecord, now time.Time) bool {
	changed := false
	if quota.ShouldReset(quota.WindowMonthly, rec.PeriodStart, now) {
		rec.MonthlyUsed = 0
		rec.PeriodStart = now
		changed = true
	}
	if quota.ShouldReset(quota.WindowDaily, rec.LastDailyReset, now) {
		rec.DailyUsed = 0
		rec.LastDailyReset = now
		changed = true
	}
	if quota.ShouldReset(quota.WindowHourly, rec.LastHourlyReset, now) {
		rec.HourlyUsed = 0
		rec.LastHourlyReset = now
		changed = true
	}
	return changed
}

func (r *counterRepo) Increment(ctx context.Context, identityKey string, ops int) error {
	const q = `
		UPDATE usage_counters
		SET monthly_used = monthly_used + $2,
		    daily_used = daily_used + $2,
		    hourly_used = hourly_used + $2,
		    updated_at = NOW()
		WHERE identity_key = $1
	`
	tag, err := r.pool.Exec(ctx, q, identityKey, ops)
	if err != nil {
		return fmt.Errorf("incrementing counter for %s: %w", identityKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incrementing counter for %s: no such row", identityKey)
	}
	return nil
}

func (r *counterRepo) IncrementIfBelow(ctx context.Context, identityKey string, ops, monthlyCeil, dailyCeil, hourlyCeil int) (bool, error) {
	const q = `
		UPDATE usage_counters
		SET monthly_used = monthly_used + $2,
		    daily_used = daily_used + $2,
		    hourly_used = hourly_used + $2,
		    updated_at = NOW()
		WHERE identity_key = $1
		  AND ($3 <= 0 OR monthly_used + $2 <= $3)
		  AND ($4 <= 0 OR daily_used + $2 <= $4)
		  AND ($5 <= 0 OR hourly_used + $2 <= $5)
	`
	tag, err := r.pool.Exec(ctx, q, identityKey, ops, monthlyCeil, dailyCeil, hourlyCeil)
	if err != nil {
		return false, fmt.Errorf("conditional increment for %s: %w", identityKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanCounter(row pgx.Row) (*model.CounterRecord, error) {
	var rec model.CounterRecord
	if err := row.Scan(
		&rec.IdentityKey,
		&rec.MonthlyUsed,
		&rec.DailyUsed,
		&rec.HourlyUsed,
		&rec.PeriodStart,
		&rec.LastDailyReset,
		&rec.LastHourlyReset,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
