package dto

import "time"

// SubscriptionActivateRequestDTO assigns a plan to the calling user.
type SubscriptionActivateRequestDTO struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// SubscriptionResponseDTO reports the user's active subscription.
type SubscriptionResponseDTO struct {
	PlanID   string    `json:"plan_id"`
	Status   string    `json:"status"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}
