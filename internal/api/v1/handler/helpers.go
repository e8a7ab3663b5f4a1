package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/middleware"
	"app/internal/model"
	"app/internal/scope"
)

func callerFromContext(w http.ResponseWriter, r *http.Request) (model.Identity, scope.AuthState, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: identity not found in context", http.StatusUnauthorized)
		return model.Identity{}, scope.AuthState{}, false
	}
	auth, _ := middleware.AuthFromContext(r.Context())
	return identity, auth, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
