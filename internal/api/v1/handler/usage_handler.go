package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/blob"
	"app/internal/scope"
	"app/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UsageHandler serves usage stats and presigned upload slots.
type UsageHandler struct {
	operations service.OperationService
	blobs      blob.Store
	logger     zerolog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(operations service.OperationService, blobs blob.Store, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{operations: operations, blobs: blobs, logger: logger}
}

// RegisterRoutes mounts usage routes.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, identityMw func(http.Handler) http.Handler) {
	mux.Handle("/usage", identityMw(http.HandlerFunc(h.getUsage)))
	mux.Handle("/usage/history", identityMw(http.HandlerFunc(h.getHistory)))
	mux.Handle("/uploads", identityMw(http.HandlerFunc(h.createUpload)))
	mux.Handle("/downloads", identityMw(http.HandlerFunc(h.createDownload)))
}

func (h *UsageHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, auth, ok := callerFromContext(w, r)
	if !ok {
		return
	}
	// Usage is reported against the conversion scope regardless of which
	// route the caller asks from.
	stats, err := h.operations.GetUsageStats(r.Context(), service.OperationContext{
		Identity:  identity,
		RoutePath: "/convert",
		Auth:      auth,
	})
	if err != nil {
		var denied *scope.AuthorizationDeniedError
		if errors.As(err, &denied) {
			http.Error(w, "Forbidden: "+denied.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, "Failed to retrieve usage: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.UsageStatsResponseDTO{
		PlanID:       stats.PlanID,
		MonthlyUsed:  stats.MonthlyUsed,
		MonthlyLimit: stats.MonthlyLimit,
		DailyUsed:    stats.DailyUsed,
		DailyLimit:   stats.DailyLimit,
		HourlyUsed:   stats.HourlyUsed,
		HourlyLimit:  stats.HourlyLimit,
	})
}

func (h *UsageHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, auth, ok := callerFromContext(w, r)
	if !ok {
		return
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid since parameter, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.operations.ListRecentOperations(r.Context(), service.OperationContext{
		Identity:  identity,
		RoutePath: "/convert",
		Auth:      auth,
	}, since, limit)
	if err != nil {
		var denied *scope.AuthorizationDeniedError
		if errors.As(err, &denied) {
			http.Error(w, "Forbidden: "+denied.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, "Failed to retrieve history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *UsageHandler) createUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, _, ok := callerFromContext(w, r); !ok {
		return
	}
	inputKey := "uploads/" + uuid.NewString()
	url, err := h.blobs.PresignPut(r.Context(), inputKey)
	if err != nil {
		http.Error(w, "Failed to create upload URL: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.UploadURLResponseDTO{UploadURL: url, InputKey: inputKey})
}

func (h *UsageHandler) createDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, _, ok := callerFromContext(w, r); !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}
	url, err := h.blobs.PresignGet(r.Context(), key)
	if err != nil {
		http.Error(w, "Failed to create download URL: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.DownloadURLResponseDTO{DownloadURL: url, Key: key})
}
