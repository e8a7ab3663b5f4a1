package scope

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubs struct {
	sub *model.UserSubscription
	err error
}

func (f *fakeSubs) GetActiveSubscription(_ context.Context, _ string) (*model.UserSubscription, error) {
	return f.sub, f.err
}

func newTestResolver(subs SubscriptionChecker) *Resolver {
	return NewResolver(subs, zerolog.Nop())
}

func TestResolveAnonymousPublicScope(t *testing.T) {
	r := newTestResolver(&fakeSubs{})
	res, err := r.Resolve(context.Background(), "/compress", AuthState{})
	require.NoError(t, err)
	assert.Equal(t, "compress", res.Scope)
	assert.Equal(t, "anonymous", res.PlanID)
}

func TestResolveAnonymousDeniedProtectedScope(t *testing.T) {
	r := newTestResolver(&fakeSubs{})
	_, err := r.Resolve(context.Background(), "/enterprise/api", AuthState{})
	var denied *AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "enterprise", denied.Scope)
}

func TestResolveUnknownRouteFailsClosed(t *testing.T) {
	r := newTestResolver(&fakeSubs{})
	_, err := r.Resolve(context.Background(), "/admin/secret", AuthState{Authenticated: true, UserID: "u1"})
	assert.Error(t, err)
}

func TestResolveAuthenticatedOnPublicRouteUsesSubscribedPlan(t *testing.T) {
	r := newTestResolver(&fakeSubs{})

	res, err := r.Resolve(context.Background(), "/convert", AuthState{Authenticated: true, UserID: "u1", ActivePlanID: "pro"})
	require.NoError(t, err)
	assert.Equal(t, "pro", res.PlanID)

	res, err = r.Resolve(context.Background(), "/convert", AuthState{Authenticated: true, UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "free", res.PlanID)
}

func TestResolvePublicRouteConsultsSubscriptionStore(t *testing.T) {
	// The auth state carries no pre-resolved plan; the resolver must reach
	// the subscription store itself.
	auth := AuthState{Authenticated: true, UserID: "u1"}

	r := newTestResolver(&fakeSubs{sub: &model.UserSubscription{UserID: "u1", PlanID: "pro", EndsAt: time.Now().Add(time.Hour)}})
	res, err := r.Resolve(context.Background(), "/convert", auth)
	require.NoError(t, err)
	assert.Equal(t, "pro", res.PlanID)

	// Lookup failure on a public route degrades to free, not to a denial.
	r = newTestResolver(&fakeSubs{err: errors.New("connection refused")})
	res, err = r.Resolve(context.Background(), "/convert", auth)
	require.NoError(t, err)
	assert.Equal(t, "free", res.PlanID)

	// An unknown plan on the subscription row is not trusted.
	r = newTestResolver(&fakeSubs{sub: &model.UserSubscription{UserID: "u1", PlanID: "legacy-gold", EndsAt: time.Now().Add(time.Hour)}})
	res, err = r.Resolve(context.Background(), "/convert", auth)
	require.NoError(t, err)
	assert.Equal(t, "free", res.PlanID)
}

func TestResolveProRouteRequiresActiveSubscription(t *testing.T) {
	auth := AuthState{Authenticated: true, UserID: "u1"}

	// No subscription at all: denied, never downgraded.
	r := newTestResolver(&fakeSubs{err: errors.New("no rows")})
	_, err := r.Resolve(context.Background(), "/pro/raw", auth)
	var denied *AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)

	// Free subscription on a pro route: denied.
	r = newTestResolver(&fakeSubs{sub: &model.UserSubscription{UserID: "u1", PlanID: "free", EndsAt: time.Now().Add(time.Hour)}})
	_, err = r.Resolve(context.Background(), "/pro/raw", auth)
	assert.Error(t, err)

	// Enterprise subscription satisfies a pro route.
	r = newTestResolver(&fakeSubs{sub: &model.UserSubscription{UserID: "u1", PlanID: "enterprise", EndsAt: time.Now().Add(time.Hour)}})
	res, err := r.Resolve(context.Background(), "/pro/raw", auth)
	require.NoError(t, err)
	assert.Equal(t, "pro-raw", res.Scope)
	assert.Equal(t, "enterprise", res.PlanID)
}
