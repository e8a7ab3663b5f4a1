package scope

import (
	"context"
	"fmt"
	"strings"

	"app/internal/model"

	"github.com/rs/zerolog"
)

// AuthorizationDeniedError is returned when an identity may not enter a
// scope. Resolution fails closed: there is no downgrade to a lesser scope.
type AuthorizationDeniedError struct {
	Scope string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("not authorized for scope %q", e.Scope)
}

// AuthState is the server-side view of the caller's authentication,
// established by the identity middleware. Nothing in it originates from
// client-supplied scope or plan claims.
type AuthState struct {
	Authenticated bool
	UserID        string
	// ActivePlanID optionally carries an already-resolved subscription plan.
	// When empty the resolver consults the subscription store itself.
	ActivePlanID string
}

// Resolution is the (scope, plan) pair a request is tracked and limited
// under.
type Resolution struct {
	Scope  string
	PlanID string
}

type routeEntry struct {
	scope  string
	planID string
	public bool // resolvable by anonymous identities
}

// routes maps route path prefixes to their tracking scope and baseline plan.
// Longest prefix wins.
var routes = map[string]routeEntry{
	"/compress":        {scope: "compress", planID: "anonymous", public: true},
	"/convert":         {scope: "convert", planID: "anonymous", public: true},
	"/tools/thumbnail": {scope: "thumbnail", planID: "anonymous", public: true},
	"/pro/batch":       {scope: "pro-batch", planID: "pro"},
	"/pro/raw":         {scope: "pro-raw", planID: "pro"},
	"/enterprise/api":  {scope: "enterprise", planID: "enterprise"},
}

// publicScopes is the allow-list of scopes an anonymous identity may resolve.
var publicScopes = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range routes {
		if e.public {
			m[e.scope] = true
		}
	}
	return m
}()

// SubscriptionChecker verifies a user's active subscription when a route
// requires a paid plan.
type SubscriptionChecker interface {
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
}

// Resolver maps a request's route path and authentication state to an
// isolated tracking scope and plan. Client-supplied scope or plan values are
// never consulted; callers log and discard them before resolution.
type Resolver struct {
	subs   SubscriptionChecker
	logger zerolog.Logger
}

func NewResolver(subs SubscriptionChecker, logger zerolog.Logger) *Resolver {
	return &Resolver{
		subs:   subs,
		logger: logger.With().Str("service", "ScopeResolver").Logger(),
	}
}

// Resolve determines the scope and plan for a route. Anonymous identities
// may only enter public scopes; routes bound to a paid plan require a
// matching active subscription and fail closed otherwise.
func (r *Resolver) Resolve(ctx context.Context, routePath string, auth AuthState) (Resolution, error) {
	entry, ok := lookupRoute(routePath)
	if !ok {
		return Resolution{}, &AuthorizationDeniedError{Scope: routePath}
	}

	if !auth.Authenticated {
		if !publicScopes[entry.scope] {
			r.logger.Warn().Str("route", routePath).Str("scope", entry.scope).
				Msg("Anonymous identity denied for protected scope")
			return Resolution{}, &AuthorizationDeniedError{Scope: entry.scope}
		}
		return Resolution{Scope: entry.scope, PlanID: "anonymous"}, nil
	}

	// Authenticated callers on public routes get their subscribed plan, or
	// free when they have none. A failed subscription lookup falls back to
	// free here: the route itself is open, only the upgrade is in question.
	if entry.public {
		planID := auth.ActivePlanID
		if planID == "" {
			planID = r.activePlan(ctx, auth.UserID)
		}
		return Resolution{Scope: entry.scope, PlanID: planID}, nil
	}

	// Paid route: the caller must hold an active subscription at (or above)
	// the route's plan. No silent downgrade.
	sub, err := r.subs.GetActiveSubscription(ctx, auth.UserID)
	if err != nil || sub == nil {
		r.logger.Warn().Err(err).Str("user_id", auth.UserID).Str("scope", entry.scope).
			Msg("Subscription lookup failed or absent; denying scope")
		return Resolution{}, &AuthorizationDeniedError{Scope: entry.scope}
	}
	if !planSatisfies(sub.PlanID, entry.planID) {
		return Resolution{}, &AuthorizationDeniedError{Scope: entry.scope}
	}
	return Resolution{Scope: entry.scope, PlanID: sub.PlanID}, nil
}

// activePlan returns the caller's subscribed plan, or free when the lookup
// fails, returns nothing, or names a plan outside the known table.
func (r *Resolver) activePlan(ctx context.Context, userID string) string {
	sub, err := r.subs.GetActiveSubscription(ctx, userID)
	if err != nil || sub == nil {
		return "free"
	}
	if _, ok := planRank[sub.PlanID]; !ok {
		r.logger.Warn().Str("user_id", userID).Str("plan_id", sub.PlanID).
			Msg("Subscription names an unknown plan; treating as free")
		return "free"
	}
	return sub.PlanID
}

func lookupRoute(routePath string) (routeEntry, bool) {
	best := ""
	var found routeEntry
	for prefix, entry := range routes {
		if strings.HasPrefix(routePath, prefix) && len(prefix) > len(best) {
			best = prefix
			found = entry
		}
	}
	return found, best != ""
}

var planRank = map[string]int{
	"anonymous":  0,
	"free":       1,
	"pro":        2,
	"enterprise": 3,
}

func planSatisfies(have, want string) bool {
	return planRank[have] >= planRank[want]
}
