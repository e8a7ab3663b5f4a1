package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for accessing subscription data.
type SubscriptionRepository interface {
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	// UpsertSubscription creates a subscription with the given planID for a
	// new user if none exists.
	UpsertSubscription(ctx context.Context, userID, planID string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

// GetActiveSubscription returns the current active subscription for a user.
func (r *subscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT user_id, plan_id, starts_at, ends_at, status, created_at, updated_at
        FROM user_subscriptions
        WHERE user_id = $1
          AND status IN ('active', 'cancelled') -- Paid users keep access until period end
          AND (ends_at + INTERVAL '6 hours') > NOW() -- grace period for the renewal cron
    `
	var us model.UserSubscription
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&us.UserID,
		&us.PlanID,
		&us.StartsAt,
		&us.EndsAt,
		&us.Status,
		&us.CreatedAt,
		&us.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch active subscription for user %s: %w", userID, err)
	}
	return &us, nil
}

// UpsertSubscription creates a subscription for a user with the given planID
// if none exists.
func (r *subscriptionRepo) UpsertSubscription(ctx context.Context, userID, planID string) error {
	const q = `
        INSERT INTO user_subscriptions (user_id, plan_id, starts_at, ends_at, status, created_at, updated_at)
        VALUES ($1, $2, NOW(), NOW() + INTERVAL '30 days', 'active', NOW(), NOW())
        ON CONFLICT (user_id) DO NOTHING
    `
	if _, err := r.pool.Exec(ctx, q, userID, planID); err != nil {
		return fmt.Errorf("upserting subscription %s for user %s: %w", planID, userID, err)
	}
	return nil
}
