package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/quota"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SubscriptionHandler handles subscription endpoints. Payment processing
// happens upstream; this surface only activates and reads plan assignments.
type SubscriptionHandler struct {
	subs   repository.SubscriptionRepository
	logger zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subs repository.SubscriptionRepository, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logger}
}

// RegisterRoutes registers the subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, identityMw func(http.Handler) http.Handler) {
	mux.Handle("/subscriptions", identityMw(http.HandlerFunc(h.handleSubscriptions)))
}

func (h *SubscriptionHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.activate(w, r)
	case http.MethodGet:
		h.getActive(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SubscriptionHandler) activate(w http.ResponseWriter, r *http.Request) {
	identity, auth, ok := callerFromContext(w, r)
	if !ok {
		return
	}
	if identity.Kind != model.IdentityUser || !auth.Authenticated {
		http.Error(w, "Unauthorized: subscriptions require a registered account", http.StatusUnauthorized)
		return
	}
	var req dto.SubscriptionActivateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if _, err := quota.GetPlan(req.PlanID); err != nil {
		http.Error(w, "Unknown plan: "+req.PlanID, http.StatusBadRequest)
		return
	}
	if err := h.subs.UpsertSubscription(r.Context(), identity.ID, req.PlanID); err != nil {
		h.logger.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to activate subscription")
		http.Error(w, "Failed to activate subscription", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"plan_id": req.PlanID, "status": "active"})
}

func (h *SubscriptionHandler) getActive(w http.ResponseWriter, r *http.Request) {
	identity, auth, ok := callerFromContext(w, r)
	if !ok {
		return
	}
	if identity.Kind != model.IdentityUser || !auth.Authenticated {
		http.Error(w, "Unauthorized: subscriptions require a registered account", http.StatusUnauthorized)
		return
	}
	sub, err := h.subs.GetActiveSubscription(r.Context(), identity.ID)
	if err != nil {
		http.Error(w, "No active subscription", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, dto.SubscriptionResponseDTO{
		PlanID:   sub.PlanID,
		Status:   sub.Status,
		StartsAt: sub.StartsAt,
		EndsAt:   sub.EndsAt,
	})
}
