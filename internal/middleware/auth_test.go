package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/scope"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Subject:   subject,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func runIdentity(t *testing.T, mutate func(*http.Request)) (*httptest.ResponseRecorder, model.Identity, bool) {
	t.Helper()
	var identity model.Identity
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := IdentityMiddleware(testSecret, "salt", zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodPost, "/convert", nil)
	req.RemoteAddr = "203.0.113.7:4567"
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, identity, ok
}

func TestIdentityMiddlewareBearerToken(t *testing.T) {
	token := signToken(t, "user-42")
	rec, identity, ok := runIdentity(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, model.IdentityUser, identity.Kind)
	assert.Equal(t, "user-42", identity.ID)
	assert.Empty(t, identity.IPHash)
}

func TestIdentityMiddlewareInvalidToken(t *testing.T) {
	rec, _, _ := runIdentity(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityMiddlewareAnonymousSession(t *testing.T) {
	rec, identity, ok := runIdentity(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-abc"})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, model.IdentitySession, identity.Kind)
	assert.Equal(t, "sess-abc", identity.ID)
	assert.NotEmpty(t, identity.IPHash)

	// Same IP and salt hash to the same value; a different IP must not.
	other := hashIP("203.0.113.8", "salt")
	assert.NotEqual(t, other, identity.IPHash)
	assert.Equal(t, hashIP("203.0.113.7", "salt"), identity.IPHash)
}

func TestIdentityMiddlewareAPIKey(t *testing.T) {
	rec, identity, ok := runIdentity(t, func(r *http.Request) {
		r.Header.Set(apiKeyHeader, "pk_live_abcdef")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, model.IdentityAPIKey, identity.Kind)
	assert.Equal(t, hashAPIKey("pk_live_abcdef"), identity.ID)
	assert.NotContains(t, identity.ID, "pk_live", "raw key must not leak into the identity")
	assert.Empty(t, identity.IPHash)

	// Distinct keys meter under distinct identities.
	_, other, _ := runIdentity(t, func(r *http.Request) {
		r.Header.Set(apiKeyHeader, "pk_live_zyxwvu")
	})
	assert.NotEqual(t, identity.ID, other.ID)
}

func TestIdentityMiddlewareAPIKeyWithBearerKeepsAuth(t *testing.T) {
	var auth scope.AuthState
	var identity model.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
		auth, _ = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := IdentityMiddleware(testSecret, "salt", zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodPost, "/convert", nil)
	req.RemoteAddr = "203.0.113.7:4567"
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-9"))
	req.Header.Set(apiKeyHeader, "pk_live_abcdef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.IdentityAPIKey, identity.Kind, "usage meters per key")
	assert.True(t, auth.Authenticated, "the bearer token still decides authentication")
	assert.Equal(t, "user-9", auth.UserID)
}

type proSubs struct{}

func (proSubs) GetActiveSubscription(_ context.Context, userID string) (*model.UserSubscription, error) {
	return &model.UserSubscription{UserID: userID, PlanID: "pro", EndsAt: time.Now().Add(time.Hour)}, nil
}

func TestBearerCallerGetsSubscribedPlanOnPublicRoute(t *testing.T) {
	// End to end through the real wiring: the middleware builds the auth
	// state, the resolver consults the subscription store.
	var auth scope.AuthState
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, _ = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := IdentityMiddleware(testSecret, "salt", zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodPost, "/convert", nil)
	req.RemoteAddr = "203.0.113.7:4567"
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, auth.Authenticated)

	resolver := scope.NewResolver(proSubs{}, zerolog.Nop())
	res, err := resolver.Resolve(context.Background(), "/convert", auth)
	require.NoError(t, err)
	assert.Equal(t, "pro", res.PlanID, "subscribed caller must not be limited as free")
}

func TestIdentityMiddlewareStripsClientClaims(t *testing.T) {
	var seen http.Header
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})
	handler := IdentityMiddleware(testSecret, "salt", zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodPost, "/convert", nil)
	req.RemoteAddr = "203.0.113.7:4567"
	req.Header.Set("X-Scope", "enterprise")
	req.Header.Set("X-Plan", "enterprise")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen.Get("X-Scope"), "client scope claim must not reach handlers")
	assert.Empty(t, seen.Get("X-Plan"), "client plan claim must not reach handlers")
}
