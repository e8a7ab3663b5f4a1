package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/blob"
	"app/internal/cache"
	"app/internal/imaging"
	"app/internal/model"
	"app/internal/quota"
	"app/internal/repository"
	"app/internal/scope"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ConversionHandler handles synchronous conversions, asynchronous job
// submissions and job status lookups.
type ConversionHandler struct {
	conversions service.ConversionService
	operations  service.OperationService
	blobs       blob.Store
	encoder     imaging.Encoder
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(
	conversions service.ConversionService,
	operations service.OperationService,
	blobs blob.Store,
	encoder imaging.Encoder,
	validate *validator.Validate,
	logger zerolog.Logger,
) *ConversionHandler {
	return &ConversionHandler{
		conversions: conversions,
		operations:  operations,
		blobs:       blobs,
		encoder:     encoder,
		validate:    validate,
		logger:      logger,
	}
}

// RegisterRoutes mounts conversion routes.
func (h *ConversionHandler) RegisterRoutes(mux *http.ServeMux, identityMw func(http.Handler) http.Handler) {
	mux.Handle("/convert", identityMw(http.HandlerFunc(h.convert)))
	mux.Handle("/compress", identityMw(http.HandlerFunc(h.convert)))
	mux.Handle("/pro/raw", identityMw(http.HandlerFunc(h.submitJob)))
	mux.Handle("/jobs/", identityMw(http.HandlerFunc(h.getJobStatus)))
}

func (h *ConversionHandler) convert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, auth, ok := callerFromContext(w, r)
	if !ok {
		return
	}

	var req dto.ConvertRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	params := req.Params()

	oc := service.OperationContext{
		Identity:  identity,
		RoutePath: r.URL.Path,
		Auth:      auth,
		Format:    params.SourceFormat,
		SizeBytes: params.SizeBytes,
	}
	if !h.checkQuota(w, r, oc) {
		return
	}

	entry, err := h.conversions.GetCachedOrCompute(r.Context(), params, func(ctx context.Context) ([]byte, error) {
		input, err := h.blobs.Download(ctx, req.InputKey)
		if err != nil {
			return nil, err
		}
		return h.encoder.Encode(ctx, input, imaging.EncodeOptions{
			OutputFormat: params.OutputFormat,
			Quality:      params.Quality,
			Width:        params.Width,
			Height:       params.Height,
		})
	})
	if err != nil {
		var failed *cache.ComputeFailedError
		switch {
		case errors.As(err, &failed):
			http.Error(w, "Conversion failed: "+failed.Error(), http.StatusBadGateway)
		case errors.Is(err, cache.ErrComputeNotConfirmed):
			http.Error(w, "Conversion still in progress, please retry", http.StatusServiceUnavailable)
		default:
			http.Error(w, "Conversion failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := h.operations.RecordOperation(r.Context(), oc); err != nil {
		// The result is already produced; surfacing a 500 here would charge
		// the caller a retry for our bookkeeping failure.
		h.logger.Error().Err(err).Msg("Failed to record operation")
	}

	writeJSON(w, http.StatusOK, dto.ConvertResponseDTO{
		CacheKey:  entry.Key,
		Format:    string(entry.Format),
		SizeBytes: entry.SizeBytes,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt,
	})
}

func (h *ConversionHandler) submitJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, auth, ok := callerFromContext(w, r)
	if !ok {
		return
	}

	var req dto.SubmitJobRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	params := req.Params()

	oc := service.OperationContext{
		Identity:  identity,
		RoutePath: r.URL.Path,
		Auth:      auth,
		Format:    params.SourceFormat,
		SizeBytes: params.SizeBytes,
	}
	res, proceed := h.checkQuotaResult(w, r, oc)
	if !proceed {
		return
	}

	plan, err := quota.GetPlan(res.PlanID)
	if err != nil {
		http.Error(w, "Unknown plan", http.StatusInternalServerError)
		return
	}
	jobID, err := h.conversions.SubmitJob(r.Context(), params, req.InputKey, req.OutputKey, plan.Tier)
	if err != nil {
		http.Error(w, "Failed to submit job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.operations.RecordOperation(r.Context(), oc); err != nil {
		h.logger.Error().Err(err).Msg("Failed to record operation")
	}

	writeJSON(w, http.StatusAccepted, dto.SubmitJobResponseDTO{
		JobID: jobID,
		State: string(model.JobQueued),
	})
}

func (h *ConversionHandler) getJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}
	status, err := h.conversions.GetJobStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.JobStatusResponseDTO{
		JobID:    status.ID,
		State:    string(status.State),
		Progress: status.Progress,
		Result:   status.Result,
		Error:    status.Error,
	})
}

// checkQuota runs the limit check and writes the denial response itself.
// Returns true when the operation may proceed.
func (h *ConversionHandler) checkQuota(w http.ResponseWriter, r *http.Request, oc service.OperationContext) bool {
	_, proceed := h.checkQuotaResult(w, r, oc)
	return proceed
}

func (h *ConversionHandler) checkQuotaResult(w http.ResponseWriter, r *http.Request, oc service.OperationContext) (model.OperationResult, bool) {
	res, err := h.operations.CheckOperationAllowed(r.Context(), oc)
	if err != nil {
		var denied *scope.AuthorizationDeniedError
		if errors.As(err, &denied) {
			http.Error(w, "Forbidden: "+denied.Error(), http.StatusForbidden)
			return res, false
		}
		http.Error(w, "Failed to check limits: "+err.Error(), http.StatusInternalServerError)
		return res, false
	}
	if !res.Allowed {
		status := http.StatusTooManyRequests
		if res.LimitType == "file_size" {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, dto.QuotaDeniedResponseDTO{
			PlanID:    res.PlanID,
			LimitType: res.LimitType,
			Remaining: res.Remaining,
			Message:   res.Message,
		})
		return res, false
	}
	return res, true
}
