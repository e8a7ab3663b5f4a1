package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"app/internal/model"
	"app/internal/scope"
	"app/internal/util"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const (
	IdentityContextKey = contextKey("identity")
	AuthContextKey     = contextKey("auth")
)

const (
	sessionCookieName = "session_id"
	apiKeyHeader      = "X-API-Key"
)

// IdentityFromContext returns the identity attached by IdentityMiddleware.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(model.Identity)
	return id, ok
}

// AuthFromContext returns the auth state attached by IdentityMiddleware.
func AuthFromContext(ctx context.Context) (scope.AuthState, bool) {
	auth, ok := ctx.Value(AuthContextKey).(scope.AuthState)
	return auth, ok
}

// IdentityMiddleware establishes who the caller is. A valid bearer token
// yields a registered-user identity; otherwise the caller is an anonymous
// session keyed by session cookie plus salted IP hash. An X-API-Key header
// overrides the tracking identity with a per-key one (keyed by the key's
// hash, never the raw key) so each key meters separately; the bearer token,
// when present, still decides authentication. Plan and scope are never taken
// from the request: any client-supplied claim headers are stripped and
// logged before handlers run.
func IdentityMiddleware(jwtSecret, ipSalt string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stripClientClaims(r, logger)

			var identity model.Identity
			var auth scope.AuthState

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					logger.Error().Msg("Invalid authorization header")
					http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
					return
				}
				claims, err := util.ValidateJWT(parts[1], jwtSecret)
				if err != nil {
					logger.Error().Msgf("Invalid token: %+v", err)
					http.Error(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
					return
				}
				identity = model.Identity{Kind: model.IdentityUser, ID: claims.Subject}
				auth = scope.AuthState{Authenticated: true, UserID: claims.Subject}
			} else {
				identity = model.Identity{
					Kind:   model.IdentitySession,
					ID:     sessionID(r),
					IPHash: hashIP(clientIP(r), ipSalt),
				}
			}

			if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
				identity = model.Identity{
					Kind: model.IdentityAPIKey,
					ID:   hashAPIKey(apiKey),
				}
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			ctx = context.WithValue(ctx, AuthContextKey, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// stripClientClaims drops headers through which a client could try to name
// its own scope or plan. They are logged and discarded.
func stripClientClaims(r *http.Request, logger zerolog.Logger) {
	for _, h := range []string{"X-Scope", "X-Plan", "X-Plan-Id"} {
		if v := r.Header.Get(h); v != "" {
			logger.Warn().
				Str("header", h).
				Str("value", v).
				Str("path", r.URL.Path).
				Msg("Discarding client-supplied claim header")
			r.Header.Del(h)
		}
	}
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return "no-session"
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func hashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])
}

// hashAPIKey derives the tracking ID for an API key. Only the hash is kept;
// the raw key never reaches logs or the ledger.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
